package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"evroaming/backend/services/sessions-service/internal/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	token        mqtt.Token
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestNewPublisherRequiresBroker(t *testing.T) {
	if _, err := NewPublisher(Config{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPublishEVSEStatus(t *testing.T) {
	c := &fakeClient{token: completedToken(nil)}
	p := newPublisher(c, Config{TopicPrefix: "roaming/"}, nil)

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := p.PublishEVSEStatus(context.Background(), "DE*GEF*E1", models.EVSEStatusCharging, ts); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(c.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(c.messages))
	}
	msg := c.messages[0]
	if msg.topic != "roaming/evses/DE*GEF*E1/status" || msg.qos != 1 || !msg.retained {
		t.Fatalf("unexpected message %+v", msg)
	}
	var decoded statusMessage
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Status != models.EVSEStatusCharging || !decoded.Timestamp.Equal(ts) {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(&fakeClient{token: completedToken(errors.New("not connected"))}, Config{}, nil)
	if err := p.PublishEVSEStatus(context.Background(), "E1", models.EVSEStatusAvailable, time.Now()); err == nil {
		t.Fatalf("expected token error")
	}

	pending := &fakeToken{done: make(chan struct{})}
	p = newPublisher(&fakeClient{token: pending}, Config{PublishTimeout: 20 * time.Millisecond}, nil)
	if err := p.PublishEVSEStatus(context.Background(), "E1", models.EVSEStatusAvailable, time.Now()); err == nil {
		t.Fatalf("expected timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = newPublisher(&fakeClient{token: pending}, Config{}, nil)
	if err := p.PublishEVSEStatus(ctx, "E1", models.EVSEStatusAvailable, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestTopicWithoutPrefix(t *testing.T) {
	p := newPublisher(&fakeClient{}, Config{}, nil)
	if got := p.Topic("E1"); got != "evses/E1/status" {
		t.Fatalf("unexpected topic %s", got)
	}
}

func TestClose(t *testing.T) {
	c := &fakeClient{}
	newPublisher(c, Config{}, nil).Close()
	if !c.disconnected {
		t.Fatalf("client not disconnected")
	}
}
