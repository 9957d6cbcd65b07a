// Package notify publishes workflow events to the outside world.
package notify

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	EventStageAdvanced        EventType = "stage.advanced"
	EventApplicationApproved  EventType = "application.approved"
	EventApplicationRejected  EventType = "application.rejected"
	EventApplicationCancelled EventType = "application.cancelled"
	EventInspectionScheduled  EventType = "inspection.scheduled"
	EventInspectionPending    EventType = "inspection.pending"
	EventInspectionCompleted  EventType = "inspection.completed"
	EventInspectionCancelled  EventType = "inspection.cancelled"
)

// Event is a fact about an application or an inspection booking.
type Event struct {
	Type            EventType `json:"type"`
	ApplicationID   string    `json:"applicationId"`
	StageID         string    `json:"stageId,omitempty"`
	PreviousStageID string    `json:"previousStageId,omitempty"`
	ScheduleID      string    `json:"scheduleId,omitempty"`
	InspectionType  string    `json:"inspectionType,omitempty"`
	ScheduledDate   string    `json:"scheduledDate,omitempty"`
	InspectorID     *int64    `json:"inspectorId,omitempty"`
	ActorUserID     string    `json:"actorUserId,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
