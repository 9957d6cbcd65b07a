// internal/workers/applications/decide-application/handler.go
package decideapplication

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
	"permit-workers/internal/workflow/progression"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "decide-application"
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Decision != DecisionApprove && input.Decision != DecisionReject {
		return nil, apperrors.NewValidationError(fmt.Sprintf("decision must be %s or %s, got %q", DecisionApprove, DecisionReject, input.Decision))
	}
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		Action:        access.ActionDecide,
	}); err != nil {
		return nil, err
	}

	var (
		app *models.Application
		err error
	)
	if input.Decision == DecisionApprove {
		app, err = h.engine.Approve(ctx, input.ApplicationID, input.ActorUserID)
	} else {
		app, err = h.engine.Reject(ctx, input.ApplicationID, input.ActorUserID)
	}
	if err != nil {
		return nil, err
	}

	out := &Output{ApplicationID: app.ID, Status: string(app.Status), CancelledSchedules: []string{}}
	if app.Status == models.ApplicationRejected {
		cancelled, err := h.scheduler.CancelForApplication(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range cancelled {
			out.CancelledSchedules = append(out.CancelledSchedules, s.ID)
		}
	}

	h.logger.Info("application decided", map[string]interface{}{
		"applicationId": app.ID,
		"decision":      input.Decision,
		"actorUserId":   input.ActorUserID,
	})
	return out, nil
}
