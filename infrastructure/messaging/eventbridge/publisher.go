// Package eventbridge publishes domain events to an AWS EventBridge
// bus so other systems can react to federation traffic.
package eventbridge

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"fedbox/domain/events"
	apperrors "fedbox/pkg/errors"
)

const eventSource = "fedbox"

// Publisher sends domain events to an EventBridge bus.
type Publisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewPublisher creates the EventBridge publisher.
func NewPublisher(client *eventbridge.Client, busName string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, busName: busName, logger: logger}
}

// Publish sends a single event.
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends multiple events in one request.
func (p *Publisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}

	entries := make([]types.PutEventsRequestEntry, 0, len(evts))
	for _, evt := range evts {
		detail, err := json.Marshal(evt)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal event")
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(eventSource),
			DetailType:   aws.String(evt.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(evt.GetTimestamp()),
		})
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return apperrors.NewExternalError("eventbridge", err)
	}
	if out.FailedEntryCount > 0 {
		p.logger.Warn("some events failed to publish",
			zap.Int32("failed", out.FailedEntryCount))
	}
	return nil
}
