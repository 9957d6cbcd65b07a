// internal/workers/inspections/create-inspection-schedule/handler.go
package createinspectionschedule

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-inspection-schedule"
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
	day, err := models.ParseDay(input.Date)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	// Inspections that satisfy a requirement are gated on that requirement's stage.
	req := access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		Action:        access.ActionScheduleInspection,
	}
	if r, ok := h.catalog.RequirementForInspection(input.InspectionType); ok {
		req.StageID = r.StageID
	}
	if _, err := h.guard.Check(ctx, req); err != nil {
		return nil, err
	}

	sch, err := h.scheduler.Create(ctx, input.ApplicationID, input.InspectionType, input.District, day)
	if err != nil {
		return nil, err
	}

	h.logger.Info("inspection booked", map[string]interface{}{
		"scheduleId":    sch.ID,
		"applicationId": sch.ApplicationID,
		"status":        string(sch.Status),
	})
	return &Output{
		ScheduleID:     sch.ID,
		Status:         string(sch.Status),
		InspectorID:    sch.InspectorID,
		InspectionType: sch.InspectionType,
		ScheduledDate:  sch.ScheduledDate.Format(models.DateLayout),
	}, nil
}
