// Package publisher defines the step-event publishing contract.
package publisher

import "context"

// Publisher delivers pipeline lifecycle events to downstream consumers.
type Publisher interface {
	// Publish sends payload to topic and returns the broker's message ID.
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoOp discards every event. Used when events are disabled.
type NoOp struct{}

func (NoOp) Publish(context.Context, string, any) (string, error) { return "", nil }
