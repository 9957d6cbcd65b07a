// internal/workers/applications/cancel-application/handler.go
package cancelapplication

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/inspection"
	"permit-workers/internal/workflow/progression"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "cancel-application"
)

type Handler struct {
	config    *Config
	guard     *access.Guard
	engine    *progression.Engine
	scheduler *inspection.Scheduler
	runner    *camunda.Runner
	logger    logger.Logger
}

func NewHandler(
	config *Config,
	guard *access.Guard,
	engine *progression.Engine,
	scheduler *inspection.Scheduler,
	runner *camunda.Runner,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:    config,
		guard:     guard,
		engine:    engine,
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

// Execute withdraws the application and releases its live inspection
// bookings. A retry after a partial failure cancels the remaining bookings.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		Action:        access.ActionCancelApplication,
	}); err != nil {
		return nil, err
	}

	app, err := h.engine.Cancel(ctx, input.ApplicationID, input.ActorUserID)
	if err != nil {
		return nil, err
	}
	cancelled, err := h.scheduler.CancelForApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cancelled))
	for _, s := range cancelled {
		ids = append(ids, s.ID)
	}
	return &Output{ApplicationID: app.ID, Status: string(app.Status), CancelledSchedules: ids}, nil
}
