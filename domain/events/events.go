package events

import "time"

// DomainEvent is the base interface for all domain events.
// Events describe something that has already happened.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// ActivityIngested is raised when an inbound activity has been
// validated and merged into the store, before its side effects run.
type ActivityIngested struct {
	BaseEvent
	ActivityIRI string `json:"activity_iri"`
	TargetBox   string `json:"target_box"`
	ActorIRI    string `json:"actor_iri"`
}

// NewActivityIngested creates an ActivityIngested event.
func NewActivityIngested(activityIRI, targetBox, actorIRI string, at time.Time) ActivityIngested {
	return ActivityIngested{
		BaseEvent: BaseEvent{
			AggregateID: activityIRI,
			EventType:   "activity.ingested",
			Timestamp:   at,
		},
		ActivityIRI: activityIRI,
		TargetBox:   targetBox,
		ActorIRI:    actorIRI,
	}
}

// ActivityProcessed is raised after the side effects of an activity
// have been carried out.
type ActivityProcessed struct {
	BaseEvent
	ActivityIRI string   `json:"activity_iri"`
	Results     []string `json:"results"`
}

// NewActivityProcessed creates an ActivityProcessed event.
func NewActivityProcessed(activityIRI string, results []string, at time.Time) ActivityProcessed {
	return ActivityProcessed{
		BaseEvent: BaseEvent{
			AggregateID: activityIRI,
			EventType:   "activity.processed",
			Timestamp:   at,
		},
		ActivityIRI: activityIRI,
		Results:     results,
	}
}

// ActivityFailed is raised when a side-effect handler errored; the
// activity stays unprocessed and may be retried.
type ActivityFailed struct {
	BaseEvent
	ActivityIRI string `json:"activity_iri"`
	Reason      string `json:"reason"`
}

// NewActivityFailed creates an ActivityFailed event.
func NewActivityFailed(activityIRI, reason string, at time.Time) ActivityFailed {
	return ActivityFailed{
		BaseEvent: BaseEvent{
			AggregateID: activityIRI,
			EventType:   "activity.failed",
			Timestamp:   at,
		},
		ActivityIRI: activityIRI,
		Reason:      reason,
	}
}

// DeliveryCompleted is raised after a push fan-out finished,
// successfully or partially.
type DeliveryCompleted struct {
	BaseEvent
	ActivityIRI string   `json:"activity_iri"`
	Succeeded   []string `json:"succeeded"`
	Failed      []string `json:"failed"`
}

// NewDeliveryCompleted creates a DeliveryCompleted event.
func NewDeliveryCompleted(activityIRI string, succeeded, failed []string, at time.Time) DeliveryCompleted {
	return DeliveryCompleted{
		BaseEvent: BaseEvent{
			AggregateID: activityIRI,
			EventType:   "delivery.completed",
			Timestamp:   at,
		},
		ActivityIRI: activityIRI,
		Succeeded:   succeeded,
		Failed:      failed,
	}
}
