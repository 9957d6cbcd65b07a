// Package requirements tracks per-application completion of stage requirements.
package requirements

import (
	"context"
	"errors"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/metrics"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("permit-workers/workflow/requirements")

// AuditSink receives every fresh completion after it has been committed.
type AuditSink interface {
	RecordCompletion(ctx context.Context, entry models.CompletionAudit) error
}

// StageCompletion aggregates the requirement state of one stage.
type StageCompletion struct {
	StageID              string   `json:"stageId"`
	Total                int      `json:"total"`
	Completed            int      `json:"completed"`
	AllMandatoryComplete bool     `json:"allMandatoryComplete"`
	MissingMandatory     []string `json:"missingMandatory,omitempty"`
}

type Tracker struct {
	catalog *catalog.Catalog
	store   store.Store
	sink    AuditSink
	logger  logger.Logger
	now     func() time.Time
}

// NewTracker builds a tracker. sink may be nil.
func NewTracker(cat *catalog.Catalog, st store.Store, sink AuditSink, log logger.Logger) *Tracker {
	return &Tracker{
		catalog: cat,
		store:   st,
		sink:    sink,
		logger:  logger.Component(log, "requirement-tracker"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IsRequirementComplete is false when no completion has been recorded.
func (t *Tracker) IsRequirementComplete(ctx context.Context, applicationID, requirementID string) (bool, error) {
	if _, err := t.catalog.Requirement(requirementID); err != nil {
		return false, err
	}
	c, err := t.store.GetCompletion(ctx, applicationID, requirementID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStorageUnavailableError(err)
	}
	return c.Completed, nil
}

// MarkComplete records the requirement as complete. Re-marking is a no-op.
func (t *Tracker) MarkComplete(ctx context.Context, applicationID, requirementID, actorUserID string) (changed bool, err error) {
	ctx, span := tracer.Start(ctx, "requirements.MarkComplete")
	defer span.End()
	span.SetAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("requirement.id", requirementID),
	)

	if _, err := t.catalog.Requirement(requirementID); err != nil {
		return false, err
	}
	if _, err := t.store.GetApplication(ctx, applicationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, apperrors.NewNotFoundError("application", applicationID)
		}
		return false, apperrors.NewStorageUnavailableError(err)
	}

	now := t.now()
	entry := models.CompletionAudit{
		ApplicationID: applicationID,
		RequirementID: requirementID,
		ActorUserID:   actorUserID,
		RecordedAt:    now,
	}
	changed, err = t.store.MarkComplete(ctx, models.RequirementCompletion{
		ApplicationID:     applicationID,
		RequirementID:     requirementID,
		Completed:         true,
		CompletedAt:       &now,
		CompletedByUserID: actorUserID,
	}, entry)
	if err != nil {
		return false, apperrors.NewStorageUnavailableError(err)
	}
	if !changed {
		t.logger.Debug("requirement already complete", map[string]interface{}{
			"applicationId": applicationID,
			"requirementId": requirementID,
		})
		return false, nil
	}

	metrics.RequirementCompletions.WithLabelValues(requirementID).Inc()
	t.logger.Info("requirement completed", map[string]interface{}{
		"applicationId": applicationID,
		"requirementId": requirementID,
		"actorUserId":   actorUserID,
	})

	if t.sink != nil {
		// The completion is committed; a sink failure only loses the reporting copy.
		if err := t.sink.RecordCompletion(ctx, entry); err != nil {
			t.logger.Warn("audit sink rejected completion", map[string]interface{}{
				"applicationId": applicationID,
				"requirementId": requirementID,
				"error":         err,
			})
		}
	}
	return true, nil
}

// StageCompletion aggregates completion over the requirements of stageID.
func (t *Tracker) StageCompletion(ctx context.Context, applicationID, stageID string) (*StageCompletion, error) {
	reqs, err := t.catalog.RequirementsFor(stageID)
	if err != nil {
		return nil, err
	}

	completions, err := t.store.ListCompletions(ctx, applicationID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	done := make(map[string]bool, len(completions))
	for _, c := range completions {
		done[c.RequirementID] = c.Completed
	}

	sc := &StageCompletion{StageID: stageID, Total: len(reqs), AllMandatoryComplete: true}
	for _, r := range reqs {
		if done[r.ID] {
			sc.Completed++
			continue
		}
		if r.Mandatory {
			sc.AllMandatoryComplete = false
			sc.MissingMandatory = append(sc.MissingMandatory, r.ID)
		}
	}
	return sc, nil
}
