// internal/workers/stages/list-stages/handler.go
package liststages

import (
	"context"

	"permit-workers/internal/common/camunda"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/workflow/catalog"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "list-stages"
)

type Handler struct {
	config  *Config
	catalog *catalog.Catalog
	runner  *camunda.Runner
	logger  logger.Logger
}

func NewHandler(config *Config, cat *catalog.Catalog, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		catalog: cat,
		runner:  runner,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Handle takes no variables; the catalog is static for the process lifetime.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.config.Timeout, func(ctx context.Context) (interface{}, error) {
		return h.Execute(ctx, &Input{})
	})
}

func (h *Handler) Execute(_ context.Context, _ *Input) (*Output, error) {
	stages := h.catalog.List()
	out := &Output{Stages: make([]StageView, 0, len(stages))}
	for _, s := range stages {
		reqs, err := h.catalog.RequirementsFor(s.ID)
		if err != nil {
			return nil, err
		}
		out.Stages = append(out.Stages, StageView{Stage: s, Requirements: reqs})
	}
	return out, nil
}
