// internal/workers/inspections/cancel-inspection-schedule/handler_test.go
package cancelinspectionschedule

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

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name     string
		actor    string
		district string
		wantErr  error
	}{
		{name: "owner cancels scheduled", actor: workertest.Owner, district: "north"},
		{name: "owner cancels pending", actor: workertest.Owner, district: "south"},
		{name: "admin cancels", actor: workertest.Admin, district: "north"},
		{name: "inspector may not cancel", actor: workertest.Inspector, district: "north", wantErr: apperrors.ErrForbidden},
		{name: "other applicant", actor: workertest.Other, district: "north", wantErr: apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := workertest.New(t)
			env.Application(t, "site_inspection")
			sch, err := env.Scheduler.Create(context.Background(), "app-1", "structural", tt.district, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			h := NewHandler(LoadConfig(), env.Guard, env.Scheduler, nil, env.Logger)
			out, err := h.Execute(context.Background(), &Input{ScheduleID: sch.ID, ActorUserID: tt.actor})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, string(models.ScheduleCancelled), out.Status)
		})
	}
}

func TestHandler_Execute_FreesTheSlot(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "site_inspection")
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	sch, err := env.Scheduler.Create(ctx, "app-1", "structural", "north", day)
	require.NoError(t, err)

	h := NewHandler(LoadConfig(), env.Guard, env.Scheduler, nil, env.Logger)
	_, err = h.Execute(ctx, &Input{ScheduleID: sch.ID, ActorUserID: workertest.Owner})
	require.NoError(t, err)

	_, err = h.Execute(ctx, &Input{ScheduleID: sch.ID, ActorUserID: workertest.Owner})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "cancelled is terminal")

	again, err := env.Scheduler.Create(ctx, "app-1", "structural", "north", day)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleScheduled, again.Status)
}
