// internal/workers/inspections/assign-pending-inspection/handler.go
package assignpendinginspection

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "assign-pending-inspection"
)

type Handler struct {
	config    *Config
	guard     *access.Guard
	scheduler *inspection.Scheduler
	runner    *camunda.Runner
	logger    logger.Logger
}

func NewHandler(config *Config, guard *access.Guard, scheduler *inspection.Scheduler, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		guard:     guard,
		scheduler: scheduler,
		runner:    runner,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.config.Timeout, func(ctx context.Context) (interface{}, error) {
		var input Input
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
		}
		return h.Execute(ctx, &input)
	})
}

// Execute completes with assigned=false when the booking is still pending, so
// the process can wait on a timer and retry.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	sch, err := h.scheduler.Get(ctx, input.ScheduleID)
	if err != nil {
		return nil, err
	}
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: sch.ApplicationID,
		Action:        access.ActionAssignInspection,
	}); err != nil {
		return nil, err
	}

	res, err := h.scheduler.AssignPending(ctx, sch.ID)
	if err != nil {
		return nil, err
	}
	return &Output{
		Assigned:    res.Status == models.ScheduleScheduled,
		ScheduleID:  res.ID,
		Status:      string(res.Status),
		InspectorID: res.InspectorID,
	}, nil
}
