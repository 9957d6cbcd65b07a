// internal/workers/inspections/create-inspection-schedule/handler_test.go
package createinspectionschedule

import (
	"context"
	"testing"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/models"
	"permit-workers/internal/workers/workertest"
	"permit-workers/internal/workflow/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(env *workertest.Env) *Handler {
	return NewHandler(LoadConfig(), env.Catalog, env.Guard, env.Scheduler, nil, env.Logger)
}

func input(actor, inspectionType, district string) *Input {
	return &Input{
		ApplicationID:  "app-1",
		ActorUserID:    actor,
		InspectionType: inspectionType,
		District:       district,
		Date:           "2025-06-01",
	}
}

func TestHandler_Execute_Scheduled(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "site_inspection")

	out, err := newTestHandler(env).Execute(context.Background(), input(workertest.Owner, "structural", "north"))
	require.NoError(t, err)
	assert.Equal(t, string(models.ScheduleScheduled), out.Status)
	require.NotNil(t, out.InspectorID)
	assert.Equal(t, workertest.InspectorID, *out.InspectorID)
	assert.Equal(t, "2025-06-01", out.ScheduledDate)
	assert.NotEmpty(t, out.ScheduleID)
	assert.Equal(t, []notify.EventType{notify.EventInspectionScheduled}, env.Events.Types())
}

func TestHandler_Execute_PendingWhenNobodyFree(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "site_inspection")

	out, err := newTestHandler(env).Execute(context.Background(), input(workertest.Owner, "structural", "south"))
	require.NoError(t, err)
	assert.Equal(t, string(models.SchedulePending), out.Status)
	assert.Nil(t, out.InspectorID)
	assert.Equal(t, []notify.EventType{notify.EventInspectionPending}, env.Events.Types())
}

func TestHandler_Execute_Duplicate(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "site_inspection")
	h := newTestHandler(env)

	first, err := h.Execute(context.Background(), input(workertest.Owner, "structural", "north"))
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), input(workertest.Owner, "structural", "north"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSchedule)
	assert.Equal(t, first.ScheduleID, apperrors.AsStandard(err).Metadata["scheduleId"])
}

func TestHandler_Execute_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		input   *Input
		wantErr error
	}{
		{name: "stage not reached", stage: "fee_payment", input: input(workertest.Owner, "structural", "north"), wantErr: apperrors.ErrStageLocked},
		{name: "inspector may not book", stage: "site_inspection", input: input(workertest.Inspector, "structural", "north"), wantErr: apperrors.ErrForbidden},
		{name: "not the owner", stage: "site_inspection", input: input(workertest.Other, "structural", "north"), wantErr: apperrors.ErrForbidden},
		{name: "bad date", stage: "site_inspection", input: &Input{ApplicationID: "app-1", ActorUserID: workertest.Owner, InspectionType: "structural", District: "north", Date: "tomorrow"}, wantErr: apperrors.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := workertest.New(t)
			env.Application(t, tt.stage)

			out, err := newTestHandler(env).Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, out)
			assert.Empty(t, env.Events.Types())
		})
	}
}

func TestHandler_Execute_AdminBooksAhead(t *testing.T) {
	env := workertest.New(t)
	env.Application(t, "document_verification")

	out, err := newTestHandler(env).Execute(context.Background(), input(workertest.Admin, "fire_safety", "north"))
	require.NoError(t, err)
	assert.Equal(t, string(models.ScheduleScheduled), out.Status)
}
