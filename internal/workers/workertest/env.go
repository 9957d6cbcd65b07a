// internal/workers/workertest/env.go

// Package workertest wires the workflow services over the in-memory store so
// worker handlers can be exercised through Execute.
package workertest

import (
	"context"
	"sync"
	"testing"

	"permit-workers/internal/common/lock"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/inspection"
	"permit-workers/internal/workflow/notify"
	"permit-workers/internal/workflow/progression"
	"permit-workers/internal/workflow/requirements"

	"github.com/stretchr/testify/require"
)

// Seeded actors.
const (
	Owner     = "owner"
	Other     = "other"
	Inspector = "insp-x"
	Admin     = "admin"
	Root      = "root"
)

// InspectorID is the inspector record bound to the Inspector user.
const InspectorID int64 = 1

type Env struct {
	Catalog   *catalog.Catalog
	Store     *store.Memory
	Tracker   *requirements.Tracker
	Guard     *access.Guard
	Engine    *progression.Engine
	Matcher   *inspection.Matcher
	Scheduler *inspection.Scheduler
	Events    *Recorder
	Logger    logger.Logger
}

// New seeds owner, other, admin, root and one northern inspector qualified for
// structural and fire_safety inspections.
func New(t *testing.T) *Env {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	mem := store.NewMemory()
	for _, u := range []models.User{
		{ID: Owner, Role: models.RoleApplicant},
		{ID: Other, Role: models.RoleApplicant},
		{ID: Inspector, Role: models.RoleInspector},
		{ID: Admin, Role: models.RoleAdmin},
		{ID: Root, Role: models.RoleSuperAdmin},
	} {
		mem.PutUser(u)
	}
	mem.PutInspector(models.Inspector{
		ID:               InspectorID,
		UserID:           Inspector,
		AssignedDistrict: "north",
		InspectionTypes:  []string{"structural", "fire_safety"},
		Available:        true,
	})

	log := logger.NewTestLogger(t)
	dir := directory.NewStore(mem)
	events := &Recorder{}
	tracker := requirements.NewTracker(cat, mem, nil, log)
	matcher := inspection.NewMatcher(mem, log)

	return &Env{
		Catalog:   cat,
		Store:     mem,
		Tracker:   tracker,
		Guard:     access.NewGuard(cat, tracker, mem, dir, log),
		Engine:    progression.NewEngine(cat, tracker, mem, dir, events, progression.Options{}, log),
		Matcher:   matcher,
		Scheduler: inspection.NewScheduler(cat, tracker, mem, matcher, lock.NewMemory(), dir, events, inspection.SchedulerOptions{}, log),
		Events:    events,
		Logger:    log,
	}
}

// Application stores app-1 for Owner, in review at stageID.
func (e *Env) Application(t *testing.T, stageID string) *models.Application {
	t.Helper()
	app := &models.Application{
		ID:             "app-1",
		OwnerUserID:    Owner,
		CurrentStageID: stageID,
		Status:         models.ApplicationInReview,
	}
	require.NoError(t, e.Store.CreateApplication(context.Background(), app))
	return app
}

// Complete marks every mandatory requirement of stageID for app-1.
func (e *Env) Complete(t *testing.T, stageID string) {
	t.Helper()
	reqs, err := e.Catalog.RequirementsFor(stageID)
	require.NoError(t, err)
	for _, r := range reqs {
		if !r.Mandatory {
			continue
		}
		_, err := e.Tracker.MarkComplete(context.Background(), "app-1", r.ID, Admin)
		require.NoError(t, err)
	}
}

// Recorder collects published events.
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *Recorder) Publish(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
