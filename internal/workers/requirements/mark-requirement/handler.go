// internal/workers/requirements/mark-requirement/handler.go
package markrequirement

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/requirements"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "mark-requirement"
)

type Handler struct {
	config  *Config
	catalog *catalog.Catalog
	guard   *access.Guard
	tracker *requirements.Tracker
	runner  *camunda.Runner
	logger  logger.Logger
}

func NewHandler(
	config *Config,
	cat *catalog.Catalog,
	guard *access.Guard,
	tracker *requirements.Tracker,
	runner *camunda.Runner,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:  config,
		catalog: cat,
		guard:   guard,
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

// Execute marks the requirement against the stage that owns it, so an
// inspector or applicant cannot complete work for a stage not yet reached.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.catalog.Requirement(input.RequirementID)
	if err != nil {
		return nil, err
	}
	if _, err := h.guard.Check(ctx, access.Request{
		ActorUserID:   input.ActorUserID,
		ApplicationID: input.ApplicationID,
		StageID:       req.StageID,
		Action:        access.ActionMarkRequirement,
	}); err != nil {
		return nil, err
	}

	changed, err := h.tracker.MarkComplete(ctx, input.ApplicationID, req.ID, input.ActorUserID)
	if err != nil {
		return nil, err
	}
	completion, err := h.tracker.StageCompletion(ctx, input.ApplicationID, req.StageID)
	if err != nil {
		return nil, err
	}

	missing := completion.MissingMandatory
	if missing == nil {
		missing = []string{}
	}
	return &Output{
		Changed:       changed,
		StageID:       req.StageID,
		StageComplete: completion.AllMandatoryComplete,
		Missing:       missing,
	}, nil
}
