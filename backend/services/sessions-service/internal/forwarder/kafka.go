package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/cdr"
)

const defaultWriteTimeout = 10 * time.Second

var now = func() time.Time { return time.Now().UTC() }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config selects the Kafka cluster and topic charge detail records go to.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaForwarder publishes charge detail records, keyed by session id.
type KafkaForwarder struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaForwarder returns a forwarder writing synchronously to cfg.Topic.
func NewKafkaForwarder(cfg Config, logger *zap.Logger) (*KafkaForwarder, error) {
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("forwarder: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newKafkaForwarder(w, cfg, logger), nil
}

func newKafkaForwarder(w messageWriter, cfg Config, logger *zap.Logger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &KafkaForwarder{writer: w, topic: cfg.Topic, timeout: timeout, logger: logger}
}

// Forward writes the record and reports how that went. It never returns an
// error; failures are part of the result.
func (f *KafkaForwarder) Forward(ctx context.Context, record *cdr.ChargeDetailRecord) cdr.SendResult {
	started := time.Now()
	result := cdr.SendResult{SessionID: record.SessionID, Target: "kafka:" + f.topic}

	value, err := json.Marshal(record)
	if err != nil {
		result.Code = cdr.SendError
		result.Message = fmt.Sprintf("encode record: %v", err)
		result.Timestamp = now()
		return result
	}

	writeCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	err = f.writer.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(record.SessionID),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte("chargeDetailRecord")}},
	})

	result.Timestamp = now()
	result.Runtime = time.Since(started)
	switch {
	case err == nil:
		result.Code = cdr.SendSuccess
	case errors.Is(err, context.DeadlineExceeded):
		result.Code = cdr.SendTimeout
	default:
		result.Code = cdr.SendCommunicationError
		result.Message = err.Error()
	}
	if err != nil {
		f.logger.Warn("cdr forward failed",
			zap.String("session", string(record.SessionID)), zap.String("topic", f.topic), zap.Error(err))
	}
	return result
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
