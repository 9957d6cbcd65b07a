package inspection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/lock"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/notify"
	"permit-workers/internal/workflow/requirements"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e notify.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// flakyCompletions fails the first MarkComplete after the schedule row has
// already moved to completed.
type flakyCompletions struct {
	*store.Memory
	failures int
}

func (f *flakyCompletions) MarkComplete(ctx context.Context, c models.RequirementCompletion, a models.CompletionAudit) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("connection reset")
	}
	return f.Memory.MarkComplete(ctx, c, a)
}

// cancelDuringBooking cancels the application and runs the booking cascade
// right after Create has passed its duplicate check.
type cancelDuringBooking struct {
	*store.Memory
	onLookup func()
}

func (c *cancelDuringBooking) FindLiveSchedule(ctx context.Context, applicationID, inspectionType string) (*models.InspectionSchedule, error) {
	if c.onLookup != nil {
		hook := c.onLookup
		c.onLookup = nil
		hook()
	}
	return c.Memory.FindLiveSchedule(ctx, applicationID, inspectionType)
}

type schedFixture struct {
	scheduler *Scheduler
	tracker   *requirements.Tracker
	store     *store.Memory
}

func newSchedFixture(t *testing.T, publisher notify.Publisher) *schedFixture {
	t.Helper()
	return newSchedFixtureOver(t, publisher, nil)
}

// newSchedFixtureOver builds the fixture with the tracker and scheduler
// reading through wrap(mem) when wrap is set.
func newSchedFixtureOver(t *testing.T, publisher notify.Publisher, wrap func(*store.Memory) store.Store) *schedFixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	mem := store.NewMemory()
	mem.PutUser(models.User{ID: "owner", Role: models.RoleApplicant})
	mem.PutUser(models.User{ID: "insp-x", Role: models.RoleInspector})
	mem.PutUser(models.User{ID: "insp-y", Role: models.RoleInspector})
	mem.PutUser(models.User{ID: "admin", Role: models.RoleAdmin})
	mem.PutInspector(models.Inspector{ID: 1, UserID: "insp-x", AssignedDistrict: "north", InspectionTypes: []string{"structural", "fire_safety"}, Available: true})

	for _, id := range []string{"app-1", "app-2", "app-3"} {
		require.NoError(t, mem.CreateApplication(context.Background(), &models.Application{
			ID: id, OwnerUserID: "owner", CurrentStageID: "site_inspection", Status: models.ApplicationInReview,
		}))
	}

	var st store.Store = mem
	if wrap != nil {
		st = wrap(mem)
	}
	log := logger.NewTestLogger(t)
	tracker := requirements.NewTracker(cat, st, nil, log)
	s := NewScheduler(cat, tracker, st, NewMatcher(mem, log), lock.NewMemory(), directory.NewStore(mem), publisher, SchedulerOptions{}, log)
	return &schedFixture{scheduler: s, tracker: tracker, store: mem}
}

func TestScheduler_CreateBindsInspector(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventInspectionScheduled && e.ScheduledDate == "2025-06-01"
	})).Return(nil).Once()

	f := newSchedFixture(t, pub)
	sch, err := f.scheduler.Create(context.Background(), "app-1", "structural", "north", june1.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleScheduled, sch.Status)
	require.NotNil(t, sch.InspectorID)
	assert.Equal(t, int64(1), *sch.InspectorID)
	assert.Equal(t, june1, sch.ScheduledDate)
	assert.Equal(t, "north", sch.District)
	pub.AssertExpectations(t)
}

func TestScheduler_CreateDuplicate(t *testing.T) {
	f := newSchedFixture(t, nil)
	ctx := context.Background()

	first, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, "app-1", "structural", "north", june1.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSchedule)
	assert.Equal(t, first.ID, apperrors.AsStandard(err).Metadata["scheduleId"])

	_, err = f.scheduler.Cancel(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.scheduler.Create(ctx, "app-1", "structural", "north", june1.AddDate(0, 0, 1))
	assert.NoError(t, err, "a cancelled booking no longer blocks")
}

func TestScheduler_CreatePendingWhenNobodyFree(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	f := newSchedFixture(t, pub)
	ctx := context.Background()

	_, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)

	second, err := f.scheduler.Create(ctx, "app-2", "structural", "north", june1)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, second.Status)
	assert.Nil(t, second.InspectorID)

	pub.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventInspectionPending && e.ScheduleID == second.ID
	}))
}

func TestScheduler_CreateRejectsClosedApplication(t *testing.T) {
	f := newSchedFixture(t, nil)
	ctx := context.Background()
	app, err := f.store.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	app.Status = models.ApplicationCancelled
	require.NoError(t, f.store.UpdateApplication(ctx, app, app.Version))

	_, err = f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.scheduler.Create(ctx, "missing", "structural", "north", june1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScheduler_ConcurrentLastSlot(t *testing.T) {
	f := newSchedFixture(t, nil)

	var wg sync.WaitGroup
	results := make([]*models.InspectionSchedule, 2)
	for i, appID := range []string{"app-1", "app-2"} {
		wg.Add(1)
		go func(i int, appID string) {
			defer wg.Done()
			sch, err := f.scheduler.Create(context.Background(), appID, "structural", "north", june1)
			assert.NoError(t, err)
			results[i] = sch
		}(i, appID)
	}
	wg.Wait()

	var scheduled, pending int
	for _, r := range results {
		require.NotNil(t, r)
		switch r.Status {
		case models.ScheduleScheduled:
			scheduled++
		case models.SchedulePending:
			pending++
		}
	}
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, 1, pending)

	loads, err := f.store.InspectorLoads(context.Background(), []int64{1}, june1)
	require.NoError(t, err)
	assert.Equal(t, 1, loads[1].Scheduled)
}

func TestScheduler_ConcurrentSameApplicationType(t *testing.T) {
	f := newSchedFixture(t, nil)
	f.store.PutInspector(models.Inspector{ID: 2, UserID: "insp-y", AssignedDistrict: "north", InspectionTypes: []string{"structural"}, Available: true})

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Create(context.Background(), "app-1", "structural", "north", june1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrDuplicateSchedule)
			duplicates++
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 4, duplicates)
}

func TestScheduler_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("bound inspector completes and marks requirement", func(t *testing.T) {
		f := newSchedFixture(t, nil)
		sch, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
		require.NoError(t, err)

		done, err := f.scheduler.Complete(ctx, sch.ID, "insp-x")
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleCompleted, done.Status)

		ok, err := f.tracker.IsRequirementComplete(ctx, "app-1", "structural_inspection")
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, f.store.AuditTrail(), 1)
		assert.Equal(t, "insp-x", f.store.AuditTrail()[0].ActorUserID)
	})

	t.Run("second completion is invalid state and does not re-mark", func(t *testing.T) {
		f := newSchedFixture(t, nil)
		sch, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
		require.NoError(t, err)
		_, err = f.scheduler.Complete(ctx, sch.ID, "insp-x")
		require.NoError(t, err)

		_, err = f.scheduler.Complete(ctx, sch.ID, "insp-x")
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		assert.Len(t, f.store.AuditTrail(), 1)
	})

	t.Run("concurrent completions mark once", func(t *testing.T) {
		f := newSchedFixture(t, nil)
		sch, err := f.scheduler.Create(ctx, "app-1", "fire_safety", "north", june1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.scheduler.Complete(ctx, sch.ID, "insp-x")
			}()
		}
		wg.Wait()
		assert.Len(t, f.store.AuditTrail(), 1)
	})

	t.Run("actor checks", func(t *testing.T) {
		f := newSchedFixture(t, nil)
		f.store.PutInspector(models.Inspector{ID: 2, UserID: "insp-y", AssignedDistrict: "south", InspectionTypes: []string{"structural"}, Available: true})
		sch, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
		require.NoError(t, err)

		for _, actor := range []string{"admin", "owner", "insp-y", "ghost"} {
			_, err := f.scheduler.Complete(ctx, sch.ID, actor)
			assert.ErrorIs(t, err, apperrors.ErrForbidden, actor)
		}
	})

	t.Run("pending booking cannot complete", func(t *testing.T) {
		f := newSchedFixture(t, nil)
		_, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
		require.NoError(t, err)
		pending, err := f.scheduler.Create(ctx, "app-2", "structural", "north", june1)
		require.NoError(t, err)
		require.Equal(t, models.SchedulePending, pending.Status)

		_, err = f.scheduler.Complete(ctx, pending.ID, "insp-x")
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})
}

func TestScheduler_CompleteResumesUnrecordedRequirement(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyCompletions{failures: 1}
	f := newSchedFixtureOver(t, nil, func(mem *store.Memory) store.Store {
		flaky.Memory = mem
		return flaky
	})

	sch, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)

	_, err = f.scheduler.Complete(ctx, sch.ID, "insp-x")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	stored, err := f.store.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	require.Equal(t, models.ScheduleCompleted, stored.Status)

	_, err = f.scheduler.Complete(ctx, sch.ID, "insp-y")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	done, err := f.scheduler.Complete(ctx, sch.ID, "insp-x")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCompleted, done.Status)

	ok, err := f.tracker.IsRequirementComplete(ctx, "app-1", "structural_inspection")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, f.store.AuditTrail(), 1)
	assert.Equal(t, "insp-x", f.store.AuditTrail()[0].ActorUserID)

	_, err = f.scheduler.Complete(ctx, sch.ID, "insp-x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Len(t, f.store.AuditTrail(), 1)
}

func TestScheduler_CreateWithdrawsBookingWhenCancelledMidway(t *testing.T) {
	ctx := context.Background()
	racer := &cancelDuringBooking{}
	f := newSchedFixtureOver(t, nil, func(mem *store.Memory) store.Store {
		racer.Memory = mem
		return racer
	})
	racer.onLookup = func() {
		app, err := f.store.GetApplication(ctx, "app-1")
		require.NoError(t, err)
		expected := app.Version
		app.Status = models.ApplicationCancelled
		require.NoError(t, f.store.UpdateApplication(ctx, app, expected))
		cancelled, err := f.scheduler.CancelForApplication(ctx, "app-1")
		require.NoError(t, err)
		assert.Empty(t, cancelled)
	}

	_, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	all, err := f.scheduler.ListForApplication(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.ScheduleCancelled, all[0].Status)

	// The inspector's day is free again.
	other, err := f.scheduler.Create(ctx, "app-2", "structural", "north", june1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleScheduled, other.Status)
}

func TestScheduler_Cancel(t *testing.T) {
	f := newSchedFixture(t, nil)
	ctx := context.Background()
	sch, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)

	cancelled, err := f.scheduler.Cancel(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, cancelled.Status)

	_, err = f.scheduler.Cancel(ctx, sch.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Contains(t, err.Error(), "current state: cancelled")

	_, err = f.scheduler.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.scheduler.Create(ctx, "app-2", "structural", "north", june1)
	require.NoError(t, err, "cancelling frees the inspector's day")
}

func TestScheduler_AssignPending(t *testing.T) {
	f := newSchedFixture(t, nil)
	ctx := context.Background()

	first, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)
	pending, err := f.scheduler.Create(ctx, "app-2", "structural", "north", june1)
	require.NoError(t, err)
	require.Equal(t, models.SchedulePending, pending.Status)

	still, err := f.scheduler.AssignPending(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, still.Status)

	_, err = f.scheduler.Cancel(ctx, first.ID)
	require.NoError(t, err)

	assigned, err := f.scheduler.AssignPending(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleScheduled, assigned.Status)
	require.NotNil(t, assigned.InspectorID)
	assert.Equal(t, int64(1), *assigned.InspectorID)

	_, err = f.scheduler.AssignPending(ctx, pending.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestScheduler_CancelForApplication(t *testing.T) {
	f := newSchedFixture(t, nil)
	ctx := context.Background()

	structural, err := f.scheduler.Create(ctx, "app-1", "structural", "north", june1)
	require.NoError(t, err)
	_, err = f.scheduler.Complete(ctx, structural.ID, "insp-x")
	require.NoError(t, err)
	fire, err := f.scheduler.Create(ctx, "app-1", "fire_safety", "north", june1.AddDate(0, 0, 1))
	require.NoError(t, err)

	cancelled, err := f.scheduler.CancelForApplication(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, fire.ID, cancelled[0].ID)

	all, err := f.scheduler.ListForApplication(ctx, "app-1")
	require.NoError(t, err)
	statuses := map[string]models.ScheduleStatus{}
	for _, s := range all {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, models.ScheduleCompleted, statuses[structural.ID])
	assert.Equal(t, models.ScheduleCancelled, statuses[fire.ID])
}
