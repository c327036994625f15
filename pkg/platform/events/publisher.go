package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/google/uuid"
)

// Publisher sends integration events to the delivery substrate. Publishing is
// a fault boundary: failures propagate to the caller rather than being
// swallowed, and the caller decides whether the surrounding operation fails.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
}

// KafkaPublisher publishes envelopes to Kafka via franz-go. Records are keyed
// by fund ID so one fund's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(client *kgo.Client) *KafkaPublisher {
	return &KafkaPublisher{client: client}
}

func (p *KafkaPublisher) Publish(ctx context.Context, envelope Envelope) error {
	topic, err := TopicFor(envelope.Type)
	if err != nil {
		return err
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(envelope.FundID.String()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s to %s: %w", envelope.Type, topic, err)
	}
	return nil
}

// MemoryPublisher collects published envelopes in memory. It backs unit tests
// and can fan events straight into registered handlers, standing in for the
// broker in single-process deployments.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Envelope
	handlers  map[Type][]Handler
}

// Handler consumes one envelope. Projection handlers must be idempotent.
type Handler func(ctx context.Context, envelope Envelope) error

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for an event type. Subsequent publishes of
// that type invoke the handler synchronously.
func (p *MemoryPublisher) Subscribe(eventType Type, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], handler)
}

func (p *MemoryPublisher) Publish(ctx context.Context, envelope Envelope) error {
	p.mu.Lock()
	p.published = append(p.published, envelope)
	handlers := append([]Handler(nil), p.handlers[envelope.Type]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// Published returns a copy of everything published so far.
func (p *MemoryPublisher) Published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.published...)
}

// PublishedOfType filters published envelopes by type.
func (p *MemoryPublisher) PublishedOfType(eventType Type) []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Envelope
	for _, e := range p.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Redeliver re-publishes an already-published envelope by ID, simulating
// at-least-once delivery in tests.
func (p *MemoryPublisher) Redeliver(ctx context.Context, envelopeID uuid.UUID) error {
	p.mu.Lock()
	var found *Envelope
	for i := range p.published {
		if p.published[i].ID == envelopeID {
			found = &p.published[i]
			break
		}
	}
	p.mu.Unlock()
	if found == nil {
		return fmt.Errorf("envelope %s was never published", envelopeID)
	}
	return p.Publish(ctx, *found)
}
