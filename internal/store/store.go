// Package store persists applications, requirement completions, inspectors and
// inspection schedules. Implementations enforce the uniqueness constraints the
// workflow relies on; callers translate the sentinel errors below.
package store

import (
	"context"
	"errors"
	"time"

	"permit-workers/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned when a compare-and-swap lost against a concurrent writer.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrSlotTaken is returned when the inspector already holds a live booking on that day.
	ErrSlotTaken = errors.New("store: inspector slot taken")
	// ErrDuplicate is returned when the application already has a non-cancelled booking of the type.
	ErrDuplicate = errors.New("store: duplicate schedule")
)

// InspectorLoad summarizes the live bookings of one inspector.
type InspectorLoad struct {
	BookedOnDay bool
	Scheduled   int
}

type Applications interface {
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// UpdateApplication writes app if the stored version equals expectedVersion and
	// bumps app.Version. ErrVersionConflict otherwise.
	UpdateApplication(ctx context.Context, app *models.Application, expectedVersion int64) error
}

type Completions interface {
	GetCompletion(ctx context.Context, applicationID, requirementID string) (*models.RequirementCompletion, error)
	ListCompletions(ctx context.Context, applicationID string) ([]models.RequirementCompletion, error)
	// MarkComplete stores the completion and its audit entry atomically. changed is
	// false when the requirement was already complete; nothing is written then.
	MarkComplete(ctx context.Context, c models.RequirementCompletion, audit models.CompletionAudit) (changed bool, err error)
}

type Inspectors interface {
	GetInspector(ctx context.Context, id int64) (*models.Inspector, error)
	GetInspectorByUser(ctx context.Context, userID string) (*models.Inspector, error)
	ListInspectors(ctx context.Context, district string) ([]models.Inspector, error)
	InspectorLoads(ctx context.Context, inspectorIDs []int64, day time.Time) (map[int64]InspectorLoad, error)
}

type Schedules interface {
	// CreateSchedule inserts s. ErrSlotTaken or ErrDuplicate on constraint violation.
	CreateSchedule(ctx context.Context, s *models.InspectionSchedule) error
	GetSchedule(ctx context.Context, id string) (*models.InspectionSchedule, error)
	FindLiveSchedule(ctx context.Context, applicationID, inspectionType string) (*models.InspectionSchedule, error)
	ListSchedulesForApplication(ctx context.Context, applicationID string) ([]models.InspectionSchedule, error)
	// TransitionSchedule moves the schedule to `to` if its status is one of `from`,
	// binding inspectorID when non-nil. ErrVersionConflict if the status no longer matches.
	TransitionSchedule(ctx context.Context, id string, from []models.ScheduleStatus, to models.ScheduleStatus, inspectorID *int64) (*models.InspectionSchedule, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Store is the full persistence surface used by the workflow engine.
type Store interface {
	Applications
	Completions
	Inspectors
	Schedules
	Users
	Ping(ctx context.Context) error
}

func statusIn(s models.ScheduleStatus, set []models.ScheduleStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
