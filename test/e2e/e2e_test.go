//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-workers/internal/common/config"
	"permit-workers/internal/common/database"
	"permit-workers/internal/common/lock"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/inspection"
	"permit-workers/internal/workflow/progression"
	"permit-workers/internal/workflow/requirements"

	decideapplication "permit-workers/internal/workers/applications/decide-application"
	openapplication "permit-workers/internal/workers/applications/open-application"
	completeinspectionschedule "permit-workers/internal/workers/inspections/complete-inspection-schedule"
	createinspectionschedule "permit-workers/internal/workers/inspections/create-inspection-schedule"
	markrequirement "permit-workers/internal/workers/requirements/mark-requirement"
	advancestage "permit-workers/internal/workers/stages/advance-stage"
	getapplicationprogress "permit-workers/internal/workers/stages/get-application-progress"
)

type services struct {
	catalog   *catalog.Catalog
	tracker   *requirements.Tracker
	guard     *access.Guard
	engine    *progression.Engine
	scheduler *inspection.Scheduler
	log       logger.Logger
}

type actors struct {
	owner, admin, inspector string
	inspectorID             int64
	district                string
}

// connect brings up Postgres with migrations applied, and Redis for booking
// locks when it answers. Tests skip when Postgres is not reachable.
func connect(t *testing.T) (*database.PostgresClient, lock.Locker) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, pg.Migrate(ctx), "migrations failed")
	t.Log("✅ PostgreSQL connected and migrated")

	var locker lock.Locker = lock.NewMemory()
	if rdb, err := database.NewRedis(cfg.Database.Redis); err == nil {
		if err := rdb.Ping(ctx); err == nil {
			t.Cleanup(func() { rdb.Close() })
			locker = lock.NewRedis(rdb.Client)
			t.Log("✅ Redis connected, using distributed booking locks")
		}
	}
	return pg, locker
}

// seed inserts users and one inspector in a district no other run shares.
func seed(t *testing.T, pg *database.PostgresClient) actors {
	t.Helper()
	suffix := uuid.NewString()[:8]
	a := actors{
		owner:     "e2e-owner-" + suffix,
		admin:     "e2e-admin-" + suffix,
		inspector: "e2e-insp-" + suffix,
		district:  "e2e-" + suffix,
	}
	ctx := context.Background()
	for id, role := range map[string]string{a.owner: "applicant", a.admin: "admin", a.inspector: "inspector"} {
		_, err := pg.DB.ExecContext(ctx, `INSERT INTO users (id, role) VALUES ($1, $2)`, id, role)
		require.NoError(t, err)
	}
	err := pg.DB.QueryRowContext(ctx,
		`INSERT INTO inspectors (user_id, assigned_district, inspection_types, available)
		 VALUES ($1, $2, '{structural,fire_safety}', true) RETURNING id`,
		a.inspector, a.district,
	).Scan(&a.inspectorID)
	require.NoError(t, err)
	return a
}

func build(t *testing.T, pg *database.PostgresClient, locker lock.Locker) *services {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	st := store.NewPostgres(pg.DB)
	dir := directory.NewStore(st)
	tracker := requirements.NewTracker(cat, st, nil, log)
	matcher := inspection.NewMatcher(st, log)
	return &services{
		catalog:   cat,
		tracker:   tracker,
		guard:     access.NewGuard(cat, tracker, st, dir, log),
		engine:    progression.NewEngine(cat, tracker, st, dir, nil, progression.Options{}, log),
		scheduler: inspection.NewScheduler(cat, tracker, st, matcher, locker, dir, nil, inspection.SchedulerOptions{}, log),
		log:       log,
	}
}

func TestPermitLifecycle(t *testing.T) {
	pg, locker := connect(t)
	a := seed(t, pg)
	s := build(t, pg, locker)
	ctx := context.Background()

	open := openapplication.NewHandler(openapplication.LoadConfig(), s.guard, s.engine, nil, s.log)
	mark := markrequirement.NewHandler(markrequirement.LoadConfig(), s.catalog, s.guard, s.tracker, nil, s.log)
	advance := advancestage.NewHandler(advancestage.LoadConfig(), s.guard, s.engine, nil, s.log)
	book := createinspectionschedule.NewHandler(createinspectionschedule.LoadConfig(), s.catalog, s.guard, s.scheduler, nil, s.log)
	complete := completeinspectionschedule.NewHandler(completeinspectionschedule.LoadConfig(), s.catalog, s.guard, s.scheduler, nil, s.log)
	progress := getapplicationprogress.NewHandler(getapplicationprogress.LoadConfig(), s.guard, s.engine, s.tracker, nil, s.log)
	decide := decideapplication.NewHandler(decideapplication.LoadConfig(), s.guard, s.engine, s.scheduler, nil, s.log)

	opened, err := open.Execute(ctx, &openapplication.Input{OwnerUserID: a.owner})
	require.NoError(t, err)
	appID := opened.ApplicationID
	assert.Equal(t, "document_verification", opened.CurrentStageID)
	t.Logf("✅ application %s opened", appID)

	markAll := func(ids ...string) {
		for _, id := range ids {
			out, err := mark.Execute(ctx, &markrequirement.Input{ApplicationID: appID, RequirementID: id, ActorUserID: a.admin})
			require.NoError(t, err, "mark %s", id)
			assert.True(t, out.Changed)
		}
	}
	advanceTo := func(want string) {
		out, err := advance.Execute(ctx, &advancestage.Input{ApplicationID: appID, ActorUserID: a.admin})
		require.NoError(t, err)
		require.Equal(t, want, out.CurrentStageID)
		t.Logf("✅ advanced to %s", want)
	}

	_, err = advance.Execute(ctx, &advancestage.Input{ApplicationID: appID, ActorUserID: a.admin})
	require.Error(t, err, "advance with missing documents must fail")

	markAll("ownership_documents", "building_plan")
	advanceTo("fee_payment")
	markAll("application_fee")
	advanceTo("site_inspection")

	day := time.Now().UTC().AddDate(0, 1, 0)
	var scheduleIDs []string
	for i, inspectionType := range []string{"structural", "fire_safety"} {
		out, err := book.Execute(ctx, &createinspectionschedule.Input{
			ApplicationID:  appID,
			ActorUserID:    a.owner,
			InspectionType: inspectionType,
			District:       a.district,
			Date:           day.AddDate(0, 0, i).Format("2006-01-02"),
		})
		require.NoError(t, err)
		require.Equal(t, "scheduled", out.Status)
		require.NotNil(t, out.InspectorID)
		assert.Equal(t, a.inspectorID, *out.InspectorID)
		scheduleIDs = append(scheduleIDs, out.ScheduleID)
	}

	_, err = book.Execute(ctx, &createinspectionschedule.Input{
		ApplicationID:  appID,
		ActorUserID:    a.owner,
		InspectionType: "structural",
		District:       a.district,
		Date:           day.AddDate(0, 0, 5).Format("2006-01-02"),
	})
	require.Error(t, err, "second live structural booking must be refused")
	t.Log("✅ inspections booked")

	for _, id := range scheduleIDs {
		out, err := complete.Execute(ctx, &completeinspectionschedule.Input{ScheduleID: id, ActorUserID: a.inspector})
		require.NoError(t, err)
		assert.Equal(t, "completed", out.Status)
		assert.NotEmpty(t, out.RequirementID)
	}

	p, err := progress.Execute(ctx, &getapplicationprogress.Input{ApplicationID: appID, ActorUserID: a.owner})
	require.NoError(t, err)
	assert.Equal(t, "site_inspection", p.CurrentStage.ID)
	assert.Empty(t, p.StageRequirements.MissingMandatory)

	advanceTo("certificate_issuance")

	decided, err := decide.Execute(ctx, &decideapplication.Input{
		ApplicationID: appID,
		ActorUserID:   a.admin,
		Decision:      decideapplication.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", decided.Status)
	t.Log("✅ application approved")
}

// Concurrent bookings for the same application and type must yield exactly one
// live schedule, whichever lock backend is in use.
func TestConcurrentBookingIsSerialized(t *testing.T) {
	pg, locker := connect(t)
	a := seed(t, pg)
	s := build(t, pg, locker)
	ctx := context.Background()

	app, err := s.engine.Open(ctx, a.owner)
	require.NoError(t, err)
	for _, id := range []string{"ownership_documents", "building_plan"} {
		_, err := s.tracker.MarkComplete(ctx, app.ID, id, a.admin)
		require.NoError(t, err)
	}
	_, err = s.engine.Advance(ctx, app.ID, a.admin)
	require.NoError(t, err)
	_, err = s.tracker.MarkComplete(ctx, app.ID, "application_fee", a.admin)
	require.NoError(t, err)
	_, err = s.engine.Advance(ctx, app.ID, a.admin)
	require.NoError(t, err)

	day := time.Now().UTC().AddDate(0, 2, 0)
	const attempts = 8
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := s.scheduler.Create(ctx, app.ID, "structural", a.district, day)
			errs <- err
		}()
	}

	succeeded := 0
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	schedules, err := s.scheduler.ListForApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, schedules, 1)
}
