// internal/workers/stages/advance-stage/handler.go
package advancestage

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/progression"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "advance-stage"
)

type Handler struct {
	config *Config
	guard  *access.Guard
	engine *progression.Engine
	runner *camunda.Runner
	logger logger.Logger
}

func NewHandler(config *Config, guard *access.Guard, engine *progression.Engine, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		guard:  guard,
		engine: engine,
		runner: runner,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

// Execute only requires read access up front. The engine checks the stage's
// advancing roles after requirement completion, so an incomplete stage is
// reported before a missing role.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		Action:        access.ActionView,
	}); err != nil {
		return nil, err
	}

	res, err := h.engine.AdvanceFrom(ctx, input.ApplicationID, input.ActorUserID, input.ExpectedStageID)
	if err != nil {
		return nil, err
	}

	return &Output{
		Outcome:         string(res.Outcome),
		PreviousStageID: res.PreviousStageID,
		CurrentStageID:  res.CurrentStageID,
		Status:          string(res.Status),
		Version:         res.Version,
	}, nil
}
