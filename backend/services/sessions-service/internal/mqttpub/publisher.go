package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Config describes the broker EVSE statuses are published to.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher writes retained EVSE status messages below a topic prefix.
type Publisher struct {
	client  client
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

type statusMessage struct {
	EVSEID    models.EVSEID     `json:"EVSEId"`
	Status    models.EVSEStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewPublisher connects to the broker and returns a ready publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqttpub: broker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sessions-service"
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqttpub: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttpub: connect to %s: %w", cfg.Broker, err)
	}
	logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return newPublisher(c, cfg, logger), nil
}

func newPublisher(c client, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{
		client:  c,
		prefix:  strings.TrimRight(cfg.TopicPrefix, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// Topic returns the topic an EVSE's status is published to.
func (p *Publisher) Topic(id models.EVSEID) string {
	topic := "evses/" + string(id) + "/status"
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "/" + topic
}

// PublishEVSEStatus publishes one status as a retained QoS 1 message.
func (p *Publisher) PublishEVSEStatus(ctx context.Context, id models.EVSEID, status models.EVSEStatus, ts time.Time) error {
	payload, err := json.Marshal(statusMessage{EVSEID: id, Status: status, Timestamp: ts.UTC()})
	if err != nil {
		return fmt.Errorf("mqttpub: encode status: %w", err)
	}

	token := p.client.Publish(p.Topic(id), 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqttpub: publish %s timed out", id)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttpub: publish %s: %w", id, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
