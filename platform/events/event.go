// Package events carries in-process signals between the scheduler and the
// notification module, such as an outbox record falling due.
package events

import (
	"context"
	"time"
)

// Event is anything published on a Bus. EventName is the subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with the moment it was raised.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current time in UTC, matching stored outbox timestamps.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one published event. Errors are logged on Publish and
// returned from PublishSync.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans events out to subscribers keyed by event name.
type Bus interface {
	// Publish runs handlers in the background and never blocks on them.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
