package events

import "context"

// EventPublisher publishes command completion events.
type EventPublisher interface {
	PublishExecuted(ctx context.Context, event *CommandExecutedEvent) error
}

// NoOpPublisher drops every event. The server uses it when NATS is not configured.
type NoOpPublisher struct{}

// PublishExecuted is a no-op.
func (NoOpPublisher) PublishExecuted(context.Context, *CommandExecutedEvent) error {
	return nil
}

// PublisherFunc adapts a function to the EventPublisher interface.
type PublisherFunc func(ctx context.Context, event *CommandExecutedEvent) error

// PublishExecuted calls f.
func (f PublisherFunc) PublishExecuted(ctx context.Context, event *CommandExecutedEvent) error {
	return f(ctx, event)
}
