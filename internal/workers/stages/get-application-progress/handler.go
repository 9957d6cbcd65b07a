// internal/workers/stages/get-application-progress/handler.go
package getapplicationprogress

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/progression"
	"permit-workers/internal/workflow/requirements"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "get-application-progress"
)

type Handler struct {
	config  *Config
	guard   *access.Guard
	engine  *progression.Engine
	tracker *requirements.Tracker
	runner  *camunda.Runner
	logger  logger.Logger
}

func NewHandler(
	config *Config,
	guard *access.Guard,
	engine *progression.Engine,
	tracker *requirements.Tracker,
	runner *camunda.Runner,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:  config,
		guard:   guard,
		engine:  engine,
		tracker: tracker,
		runner:  runner,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		Action:        access.ActionView,
	}); err != nil {
		return nil, err
	}

	p, err := h.engine.Progress(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	completion, err := h.tracker.StageCompletion(ctx, input.ApplicationID, p.CurrentStage.ID)
	if err != nil {
		return nil, err
	}

	missing := completion.MissingMandatory
	if missing == nil {
		missing = []string{}
	}
	return &Output{
		CurrentStage:    p.CurrentStage,
		CompletedStages: p.CompletedStages,
		PercentComplete: p.PercentComplete,
		Status:          p.Status,
		StageRequirements: StageRequirements{
			Total:            completion.Total,
			Completed:        completion.Completed,
			MissingMandatory: missing,
		},
	}, nil
}
