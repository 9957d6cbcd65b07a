package access

import (
	"context"
	"testing"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/requirements"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	guard   *Guard
	tracker *requirements.Tracker
	store   *store.Memory
	catalog *catalog.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	mem := store.NewMemory()
	for _, u := range []models.User{
		{ID: "owner", Role: models.RoleApplicant},
		{ID: "other", Role: models.RoleApplicant},
		{ID: "insp", Role: models.RoleInspector},
		{ID: "admin", Role: models.RoleAdmin},
		{ID: "root", Role: models.RoleSuperAdmin},
	} {
		mem.PutUser(u)
	}

	log := logger.NewTestLogger(t)
	tracker := requirements.NewTracker(cat, mem, nil, log)
	return &fixture{
		guard:   NewGuard(cat, tracker, mem, directory.NewStore(mem), log),
		tracker: tracker,
		store:   mem,
		catalog: cat,
	}
}

func (f *fixture) app(t *testing.T, stageID string) *models.Application {
	t.Helper()
	app := &models.Application{ID: "app-1", OwnerUserID: "owner", CurrentStageID: stageID, Status: models.ApplicationInReview}
	require.NoError(t, f.store.CreateApplication(context.Background(), app))
	return app
}

func TestGuard_FutureStagesLockedForNonPrivileged(t *testing.T) {
	f := newFixture(t)
	f.app(t, "fee_payment")
	current := 2

	for _, actor := range []string{"owner", "insp"} {
		for _, stage := range f.catalog.List() {
			_, err := f.guard.Check(context.Background(), Request{
				ActorUserID:   actor,
				ApplicationID: "app-1",
				StageID:       stage.ID,
				Action:        ActionView,
			})
			if stage.OrderNumber > current {
				require.Error(t, err, "%s on %s", actor, stage.ID)
				assert.ErrorIs(t, err, apperrors.ErrStageLocked)
				std := apperrors.AsStandard(err)
				assert.Equal(t, stage.OrderNumber, std.Metadata["stageOrder"])
				assert.Equal(t, current, std.Metadata["currentOrder"])
			} else {
				assert.NoError(t, err, "%s on %s", actor, stage.ID)
			}
		}
	}
}

func TestGuard_PrivilegedBypassStageOrder(t *testing.T) {
	f := newFixture(t)
	f.app(t, "document_verification")

	for _, actor := range []string{"admin", "root"} {
		d, err := f.guard.Check(context.Background(), Request{
			ActorUserID:   actor,
			ApplicationID: "app-1",
			StageID:       "certificate_issuance",
			Action:        ActionView,
		})
		require.NoError(t, err, actor)
		assert.Equal(t, "certificate_issuance", d.StageID)
		assert.Equal(t, "document_verification", d.CurrentStageID)
		assert.False(t, d.Owner)
	}
}

func TestGuard_Ownership(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		action  Action
		wantErr error
	}{
		{name: "owner views", actor: "owner", action: ActionView},
		{name: "other applicant", actor: "other", action: ActionView, wantErr: apperrors.ErrForbidden},
		{name: "inspector reads any application", actor: "insp", action: ActionView},
		{name: "inspector may not update", actor: "insp", action: ActionUpdate, wantErr: apperrors.ErrForbidden},
		{name: "applicant may not advance", actor: "owner", action: ActionAdvance, wantErr: apperrors.ErrForbidden},
		{name: "applicant may not decide", actor: "owner", action: ActionDecide, wantErr: apperrors.ErrForbidden},
		{name: "superadmin decides", actor: "root", action: ActionDecide},
		{name: "unknown actor", actor: "ghost", action: ActionView, wantErr: apperrors.ErrForbidden},
		{name: "missing actor", actor: "", action: ActionView, wantErr: apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.app(t, "document_verification")

			d, err := f.guard.Check(context.Background(), Request{ActorUserID: tt.actor, ApplicationID: "app-1", Action: tt.action})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.actor == "owner", d.Owner)
		})
	}
}

func TestGuard_ProceedNeedsCompleteStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app(t, "document_verification")
	req := Request{ActorUserID: "owner", ApplicationID: "app-1", Action: ActionProceed}

	_, err := f.guard.Check(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStageNotComplete)
	assert.Equal(t, []string{"ownership_documents", "building_plan"}, apperrors.AsStandard(err).Metadata["missingRequirements"])

	view := req
	view.Action = ActionView
	_, err = f.guard.Check(ctx, view)
	assert.NoError(t, err, "viewing is not gated on completion")

	for _, id := range []string{"ownership_documents", "building_plan"} {
		_, err := f.tracker.MarkComplete(ctx, "app-1", id, "admin")
		require.NoError(t, err)
	}
	_, err = f.guard.Check(ctx, req)
	assert.NoError(t, err)
}

func TestGuard_NotFound(t *testing.T) {
	f := newFixture(t)
	f.app(t, "document_verification")

	_, err := f.guard.Check(context.Background(), Request{ActorUserID: "admin", ApplicationID: "nope", Action: ActionView})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.guard.Check(context.Background(), Request{ActorUserID: "admin", ApplicationID: "app-1", StageID: "nope", Action: ActionView})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAllowed_SuperadminCoversAdmin(t *testing.T) {
	for _, a := range allActions {
		if Allowed(models.RoleAdmin, a) {
			assert.True(t, Allowed(models.RoleSuperAdmin, a), a)
		}
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionView, a)

	a, err = ParseAction("proceed")
	require.NoError(t, err)
	assert.Equal(t, ActionProceed, a)

	_, err = ParseAction("delete")
	assert.Error(t, err)
}

func TestGuard_Authorize(t *testing.T) {
	f := newFixture(t)

	u, err := f.guard.Authorize(context.Background(), "owner", ActionOpenApplication)
	require.NoError(t, err)
	assert.Equal(t, models.RoleApplicant, u.Role)

	_, err = f.guard.Authorize(context.Background(), "insp", ActionOpenApplication)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.guard.Authorize(context.Background(), "ghost", ActionOpenApplication)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
