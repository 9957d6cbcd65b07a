// internal/workers/inspections/find-inspector/handler.go
package findinspector

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/workflow/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "find-inspector"
)

type Handler struct {
	config  *Config
	matcher *inspection.Matcher
	runner  *camunda.Runner
	logger  logger.Logger
}

func NewHandler(config *Config, matcher *inspection.Matcher, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		matcher: matcher,
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

// Execute reports found=false instead of failing when nobody is free, so the
// process can branch without an incident.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	day, err := models.ParseDay(input.Date)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	insp, err := h.matcher.FindAvailable(ctx, input.InspectionType, input.District, day)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNoneAvailable {
			return &Output{Found: false}, nil
		}
		return nil, err
	}
	return &Output{Found: true, Inspector: insp}, nil
}
