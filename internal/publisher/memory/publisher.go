// Package memory backs the events surface with a slice, for tests and for
// runs that want event accounting without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish call.
type Message struct {
	Topic   string
	Payload any
}

// Publisher collects step events in order of publication.
type Publisher struct {
	mu        sync.Mutex
	published []Message
}

func New() *Publisher {
	return &Publisher{}
}

// Publish appends the event. The returned ID is the 1-based position in the
// recorded sequence, prefixed so callers can tell it from a broker ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.published)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.published))
	copy(out, p.published)
	return out
}
