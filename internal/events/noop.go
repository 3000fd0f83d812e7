package events

import "context"

// NoopPublisher discards all events. Used when LOOM_NATS_URL is not set.
type NoopPublisher struct{}

func (p *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
