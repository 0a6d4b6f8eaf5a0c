package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"evroaming/backend/services/sessions-service/internal/cdr"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  bool
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testRecord(t *testing.T) *cdr.ChargeDetailRecord {
	t.Helper()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec, err := cdr.New(cdr.Params{SessionID: "S1", SessionStart: start, SessionEnd: start.Add(time.Hour), EVSEID: "DE*GEF*E1"})
	if err != nil {
		t.Fatalf("cdr: %v", err)
	}
	return rec
}

func TestNewKafkaForwarderValidates(t *testing.T) {
	if _, err := NewKafkaForwarder(Config{Topic: "cdrs"}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaForwarder(Config{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected error without topic")
	}
}

func TestForwardSuccess(t *testing.T) {
	w := &fakeWriter{}
	f := newKafkaForwarder(w, Config{Topic: "cdrs"}, nil)

	res := f.Forward(context.Background(), testRecord(t))
	if res.Code != cdr.SendSuccess || res.SessionID != "S1" || res.Target != "kafka:cdrs" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "S1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var decoded map[string]any
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("value is not json: %v", err)
	}
	if decoded["sessionId"] != "S1" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}

func TestForwardFailures(t *testing.T) {
	f := newKafkaForwarder(&fakeWriter{err: errors.New("broker down")}, Config{Topic: "cdrs"}, nil)
	if res := f.Forward(context.Background(), testRecord(t)); res.Code != cdr.SendCommunicationError || res.Message != "broker down" {
		t.Fatalf("unexpected result %+v", res)
	}

	f = newKafkaForwarder(&fakeWriter{block: true}, Config{Topic: "cdrs", WriteTimeout: 20 * time.Millisecond}, nil)
	if res := f.Forward(context.Background(), testRecord(t)); res.Code != cdr.SendTimeout || res.IsSuccess() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	f := newKafkaForwarder(w, Config{Topic: "cdrs"}, nil)
	if err := f.Close(); err != nil || !w.closed {
		t.Fatalf("writer not closed")
	}
}
