// internal/workers/applications/cancel-application/handler_test.go
package cancelapplication

import (
	"context"
	"testing"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/models"
	"permit-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute_CancelsBookings(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "site_inspection")
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	scheduled, err := env.Scheduler.Create(ctx, "app-1", "structural", "north", day)
	require.NoError(t, err)
	pending, err := env.Scheduler.Create(ctx, "app-1", "fire_safety", "north", day)
	require.NoError(t, err)
	require.Equal(t, models.SchedulePending, pending.Status)

	h := NewHandler(LoadConfig(), env.Guard, env.Engine, env.Scheduler, nil, env.Logger)
	out, err := h.Execute(ctx, &Input{ApplicationID: "app-1", ActorUserID: workertest.Owner})
	require.NoError(t, err)
	assert.Equal(t, string(models.ApplicationCancelled), out.Status)
	assert.ElementsMatch(t, []string{scheduled.ID, pending.ID}, out.CancelledSchedules)

	again, err := h.Execute(ctx, &Input{ApplicationID: "app-1", ActorUserID: workertest.Owner})
	require.NoError(t, err, "cancelling twice is a no-op")
	assert.Empty(t, again.CancelledSchedules)
}

func TestHandler_Execute_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		wantErr error
	}{
		{name: "other applicant", actor: workertest.Other, wantErr: apperrors.ErrForbidden},
		{name: "inspector", actor: workertest.Inspector, wantErr: apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := workertest.New(t)
			env.Application(t, "fee_payment")
			h := NewHandler(LoadConfig(), env.Guard, env.Engine, env.Scheduler, nil, env.Logger)

			_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", ActorUserID: tt.actor})
			assert.ErrorIs(t, err, tt.wantErr)

			app, err := env.Store.GetApplication(context.Background(), "app-1")
			require.NoError(t, err)
			assert.Equal(t, models.ApplicationInReview, app.Status)
		})
	}
}
