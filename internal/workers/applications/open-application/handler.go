// internal/workers/applications/open-application/handler.go
package openapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/progression"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "open-application"
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := h.guard.Authorize(ctx, input.OwnerUserID, access.ActionOpenApplication); err != nil {
		return nil, err
	}

	app, err := h.engine.Open(ctx, input.OwnerUserID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("application opened", map[string]interface{}{
		"applicationId": app.ID,
		"ownerUserId":   app.OwnerUserID,
	})
	return &Output{
		ApplicationID:  app.ID,
		CurrentStageID: app.CurrentStageID,
		Status:         string(app.Status),
		CreatedAt:      app.CreatedAt.Format(time.RFC3339),
	}, nil
}
