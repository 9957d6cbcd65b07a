// internal/workers/stages/check-access/handler.go
package checkaccess

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "check-access"
)

// Denials the process branches on. Anything else fails the job.
var denialCodes = map[apperrors.ErrorCode]bool{
	apperrors.ErrCodeForbidden:        true,
	apperrors.ErrCodeStageLocked:      true,
	apperrors.ErrCodeStageNotComplete: true,
}

type Handler struct {
	config *Config
	guard  *access.Guard
	runner *camunda.Runner
	logger logger.Logger
}

func NewHandler(config *Config, guard *access.Guard, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		guard:  guard,
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
	action, err := access.ParseAction(input.Action)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	decision, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		StageID:       input.StageID,
		Action:        action,
	})
	if err != nil {
		std := apperrors.AsStandard(err)
		if !denialCodes[std.Code] {
			return nil, err
		}
		reason := std.Details
		if reason == "" {
			reason = std.Message
		}
		return &Output{
			Allowed:      false,
			StageID:      input.StageID,
			DenialCode:   string(std.Code),
			DenialReason: reason,
			Denial:       std.Metadata,
		}, nil
	}

	return &Output{
		Allowed:        true,
		StageID:        decision.StageID,
		CurrentStageID: decision.CurrentStageID,
	}, nil
}
