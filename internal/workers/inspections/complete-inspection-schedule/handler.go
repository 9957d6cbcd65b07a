// internal/workers/inspections/complete-inspection-schedule/handler.go
package completeinspectionschedule

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "complete-inspection-schedule"
)

type Handler struct {
	config    *Config
	catalog   *catalog.Catalog
	guard     *access.Guard
	scheduler *inspection.Scheduler
	runner    *camunda.Runner
	logger    logger.Logger
}

func NewHandler(
	config *Config,
	cat *catalog.Catalog,
	guard *access.Guard,
	scheduler *inspection.Scheduler,
	runner *camunda.Runner,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:    config,
		catalog:   cat,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	sch, err := h.scheduler.Get(ctx, input.ScheduleID)
	if err != nil {
		return nil, err
	}
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: sch.ApplicationID,
		Action:        access.ActionCompleteInspection,
	}); err != nil {
		return nil, err
	}

	done, err := h.scheduler.Complete(ctx, sch.ID, input.ActorUserID)
	if err != nil {
		return nil, err
	}

	out := &Output{
		ScheduleID:    done.ID,
		ApplicationID: done.ApplicationID,
		Status:        string(done.Status),
	}
	if req, ok := h.catalog.RequirementForInspection(done.InspectionType); ok {
		out.RequirementID = req.ID
	}
	return out, nil
}
