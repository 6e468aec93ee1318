// Package messaging provides the in-process event publisher used when
// no external bus is configured.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"fedbox/domain/events"
)

// LogPublisher records events in the log and drops them.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates the logging publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs a single event.
func (p *LogPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Debug("domain event",
		zap.String("type", event.GetEventType()),
		zap.String("aggregate", event.GetAggregateID()))
	return nil
}

// PublishBatch logs multiple events.
func (p *LogPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	for _, evt := range evts {
		if err := p.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}
