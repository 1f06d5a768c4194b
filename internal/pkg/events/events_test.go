package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type recordingChannel struct {
	mu   sync.Mutex
	keys []string
	msgs []amqp.Publishing
}

func (c *recordingChannel) PublishWithContext(_ context.Context, _ string, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func TestNewEnvelopeFillsMeta(t *testing.T) {
	t.Parallel()
	env := NewEnvelope(TypeBatchStarted, "", BatchStarted{UserID: 1, Total: 5})
	if env.Meta.ID == "" || env.Meta.CorrelationID != env.Meta.ID || env.Meta.Time.IsZero() {
		t.Fatalf("meta = %+v", env.Meta)
	}
	other := NewEnvelope(TypeBatchItem, "job-1", nil)
	if other.Meta.CorrelationID != "job-1" {
		t.Fatalf("correlation = %q", other.Meta.CorrelationID)
	}
}

func TestAMQPPublisherRoutesByType(t *testing.T) {
	t.Parallel()
	ch := &recordingChannel{}
	p := &AMQPPublisher{exchange: "relay.events", appID: "test", log: zerolog.Nop(), ch: ch}

	env := NewEnvelope(TypeBatchFinished, "job-7", BatchFinished{UserID: 3, Total: 5, Success: 4})
	if err := p.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(ch.msgs) != 1 || ch.keys[0] != TypeBatchFinished {
		t.Fatalf("published keys = %v", ch.keys)
	}
	msg := ch.msgs[0]
	if msg.CorrelationId != "job-7" || msg.MessageId != env.Meta.ID || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("publishing = %+v", msg)
	}
	var decoded struct {
		Meta Meta          `json:"meta"`
		Data BatchFinished `json:"data"`
	}
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body decode: %v", err)
	}
	if decoded.Data.Success != 4 || decoded.Meta.Type != TypeBatchFinished {
		t.Fatalf("decoded = %+v", decoded)
	}

	if err := p.Publish(context.Background(), Envelope{}); err == nil {
		t.Fatalf("Publish() without id must fail")
	}
	_ = p.Close()
	if err := p.Publish(context.Background(), env); err == nil {
		t.Fatalf("Publish() after Close must fail")
	}
}
