// Package progression moves applications through the ordered stage catalog.
package progression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/metrics"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/notify"
	"permit-workers/internal/workflow/requirements"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("permit-workers/workflow/progression")

// Outcome distinguishes a real advance from the terminal no-op.
type Outcome string

const (
	OutcomeAdvanced Outcome = "ADVANCED"
	OutcomeTerminal Outcome = "TERMINAL_STAGE"
	// OutcomeAlreadyAdvanced reports that the application has already left the
	// stage the caller expected to advance from.
	OutcomeAlreadyAdvanced Outcome = "ALREADY_ADVANCED"
)

// Options are the deployment policy knobs.
type Options struct {
	// AutoApproveFinalStage approves the application when it enters a last stage
	// that defines no requirements.
	AutoApproveFinalStage bool
}

type AdvanceResult struct {
	Outcome         Outcome                  `json:"outcome"`
	PreviousStageID string                   `json:"previousStageId"`
	CurrentStageID  string                   `json:"currentStageId"`
	Status          models.ApplicationStatus `json:"status"`
	Version         int64                    `json:"version"`
}

type Progress struct {
	CurrentStage    models.Stage             `json:"currentStage"`
	CompletedStages []models.Stage           `json:"completedStages"`
	PercentComplete float64                  `json:"percentComplete"`
	Status          models.ApplicationStatus `json:"status"`
}

type Engine struct {
	catalog   *catalog.Catalog
	tracker   *requirements.Tracker
	store     store.Applications
	directory directory.Directory
	publisher notify.Publisher
	opts      Options
	logger    logger.Logger
	now       func() time.Time
}

func NewEngine(
	cat *catalog.Catalog,
	tracker *requirements.Tracker,
	apps store.Applications,
	dir directory.Directory,
	publisher notify.Publisher,
	opts Options,
	log logger.Logger,
) *Engine {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Engine{
		catalog:   cat,
		tracker:   tracker,
		store:     apps,
		directory: dir,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Component(log, "progression-engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) load(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := e.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("application", applicationID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	return app, nil
}

// Open creates a draft application at the first stage.
func (e *Engine) Open(ctx context.Context, ownerUserID string) (*models.Application, error) {
	if ownerUserID == "" {
		return nil, apperrors.NewValidationError("ownerUserId is required")
	}
	app := &models.Application{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		CurrentStageID: e.catalog.First().ID,
		Status:         models.ApplicationDraft,
	}
	if err := e.store.CreateApplication(ctx, app); err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	return app, nil
}

// Application returns the stored application.
func (e *Engine) Application(ctx context.Context, applicationID string) (*models.Application, error) {
	return e.load(ctx, applicationID)
}

// CurrentStage resolves the stage the application is at.
func (e *Engine) CurrentStage(ctx context.Context, applicationID string) (models.Stage, error) {
	app, err := e.load(ctx, applicationID)
	if err != nil {
		return models.Stage{}, err
	}
	return e.catalog.Stage(app.CurrentStageID)
}

// Progress reports completed stages and percent done. A stage is complete once
// the application has moved past it; the final stage counts once approved.
func (e *Engine) Progress(ctx context.Context, applicationID string) (*Progress, error) {
	app, err := e.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	current, err := e.catalog.Stage(app.CurrentStageID)
	if err != nil {
		return nil, err
	}

	p := &Progress{CurrentStage: current, CompletedStages: []models.Stage{}, Status: app.Status}
	for _, s := range e.catalog.List() {
		if s.OrderNumber < current.OrderNumber ||
			(s.OrderNumber == current.OrderNumber && app.Status == models.ApplicationApproved) {
			p.CompletedStages = append(p.CompletedStages, s)
		}
	}
	pct := float64(len(p.CompletedStages)) / float64(e.catalog.Len()) * 100
	p.PercentComplete = math.Round(pct*100) / 100
	return p, nil
}

// Advance moves the application to the next stage. The terminal case is a
// successful no-op reported through AdvanceResult.Outcome. A lost race returns
// CONFLICT and is not retried here.
func (e *Engine) Advance(ctx context.Context, applicationID, actorUserID string) (*AdvanceResult, error) {
	return e.AdvanceFrom(ctx, applicationID, actorUserID, "")
}

// AdvanceFrom is Advance guarded by the stage the caller saw. When the
// application is already past fromStageID nothing moves and the outcome is
// ALREADY_ADVANCED, so a replayed job cannot skip a stage. An empty
// fromStageID disables the guard.
func (e *Engine) AdvanceFrom(ctx context.Context, applicationID, actorUserID, fromStageID string) (result *AdvanceResult, err error) {
	ctx, span := tracer.Start(ctx, "progression.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", applicationID))
	defer func() {
		outcome := strings.ToLower(string(apperrors.CodeOf(err)))
		if err == nil {
			outcome = strings.ToLower(string(result.Outcome))
		}
		metrics.StageAdvances.WithLabelValues(outcome).Inc()
	}()

	app, err := e.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.Closed() {
		return nil, apperrors.NewInvalidStateError("application", string(app.Status), "next stage")
	}

	current, err := e.catalog.Stage(app.CurrentStageID)
	if err != nil {
		return nil, err
	}

	if fromStageID != "" && fromStageID != current.ID {
		from, err := e.catalog.Stage(fromStageID)
		if err != nil {
			return nil, err
		}
		if from.OrderNumber > current.OrderNumber {
			return nil, apperrors.NewInvalidStateError("application", "stage "+current.ID, "advance from "+from.ID)
		}
		return &AdvanceResult{
			Outcome:         OutcomeAlreadyAdvanced,
			PreviousStageID: from.ID,
			CurrentStageID:  current.ID,
			Status:          app.Status,
			Version:         app.Version,
		}, nil
	}

	next, ok := e.catalog.Next(current)
	if !ok || app.Status == models.ApplicationApproved {
		return &AdvanceResult{
			Outcome:         OutcomeTerminal,
			PreviousStageID: current.ID,
			CurrentStageID:  current.ID,
			Status:          app.Status,
			Version:         app.Version,
		}, nil
	}

	completion, err := e.tracker.StageCompletion(ctx, app.ID, current.ID)
	if err != nil {
		return nil, err
	}
	if !completion.AllMandatoryComplete {
		return nil, apperrors.NewIncompleteStageError(current.ID, completion.MissingMandatory)
	}

	actor, err := e.directory.Lookup(ctx, actorUserID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
			return nil, apperrors.NewForbiddenError(fmt.Sprintf("unknown actor %s", actorUserID))
		}
		return nil, err
	}
	if !current.AllowsAdvanceBy(actor.Role) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not advance stage %s; required: %s",
			actor.Role, current.ID, joinRoles(current.RequiredRoleToAdvance)))
	}

	expected := app.Version
	app.CurrentStageID = next.ID
	if app.Status == models.ApplicationDraft {
		app.Status = models.ApplicationInReview
	}
	approved := false
	if e.opts.AutoApproveFinalStage && e.catalog.IsLast(next.ID) {
		reqs, err := e.catalog.RequirementsFor(next.ID)
		if err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			app.Status = models.ApplicationApproved
			approved = true
		}
	}

	if err := e.store.UpdateApplication(ctx, app, expected); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, apperrors.NewConflictError("application", app.ID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("application", app.ID)
		}
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	e.logger.Info("application advanced", map[string]interface{}{
		"applicationId": app.ID,
		"fromStage":     current.ID,
		"toStage":       next.ID,
		"actorUserId":   actorUserID,
		"autoApproved":  approved,
	})
	e.publish(ctx, notify.Event{
		Type:            notify.EventStageAdvanced,
		ApplicationID:   app.ID,
		PreviousStageID: current.ID,
		StageID:         next.ID,
		ActorUserID:     actorUserID,
	})
	if approved {
		e.publish(ctx, notify.Event{Type: notify.EventApplicationApproved, ApplicationID: app.ID, StageID: next.ID, ActorUserID: actorUserID})
	}

	return &AdvanceResult{
		Outcome:         OutcomeAdvanced,
		PreviousStageID: current.ID,
		CurrentStageID:  next.ID,
		Status:          app.Status,
		Version:         app.Version,
	}, nil
}

// Approve closes an application sitting at the last stage with every mandatory
// requirement done. Privileged roles only.
func (e *Engine) Approve(ctx context.Context, applicationID, actorUserID string) (*models.Application, error) {
	return e.decide(ctx, applicationID, actorUserID, models.ApplicationApproved, func(app *models.Application) error {
		if !e.catalog.IsLast(app.CurrentStageID) {
			return apperrors.NewInvalidStateError("application", app.CurrentStageID, string(models.ApplicationApproved))
		}
		completion, err := e.tracker.StageCompletion(ctx, app.ID, app.CurrentStageID)
		if err != nil {
			return err
		}
		if !completion.AllMandatoryComplete {
			return apperrors.NewIncompleteStageError(app.CurrentStageID, completion.MissingMandatory)
		}
		return nil
	})
}

// Reject closes an application at any stage. Privileged roles only.
func (e *Engine) Reject(ctx context.Context, applicationID, actorUserID string) (*models.Application, error) {
	return e.decide(ctx, applicationID, actorUserID, models.ApplicationRejected, nil)
}

// Cancel withdraws an application. The owner or a privileged role may cancel.
func (e *Engine) Cancel(ctx context.Context, applicationID, actorUserID string) (*models.Application, error) {
	return e.decide(ctx, applicationID, actorUserID, models.ApplicationCancelled, nil)
}

func (e *Engine) decide(
	ctx context.Context,
	applicationID, actorUserID string,
	to models.ApplicationStatus,
	precondition func(*models.Application) error,
) (*models.Application, error) {
	app, err := e.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	actor, err := e.directory.Lookup(ctx, actorUserID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
			return nil, apperrors.NewForbiddenError(fmt.Sprintf("unknown actor %s", actorUserID))
		}
		return nil, err
	}
	allowed := actor.Role.Privileged()
	if to == models.ApplicationCancelled && actor.ID == app.OwnerUserID {
		allowed = true
	}
	if !allowed {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not move application to %s", actor.Role, to))
	}

	if app.Status == to {
		return app, nil
	}
	if app.Status.Closed() || app.Status == models.ApplicationApproved {
		return nil, apperrors.NewInvalidStateError("application", string(app.Status), string(to))
	}
	if precondition != nil {
		if err := precondition(app); err != nil {
			return nil, err
		}
	}

	expected := app.Version
	app.Status = to
	if err := e.store.UpdateApplication(ctx, app, expected); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, apperrors.NewConflictError("application", app.ID)
		}
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	e.logger.Info("application status changed", map[string]interface{}{
		"applicationId": app.ID,
		"status":        string(to),
		"actorUserId":   actorUserID,
	})
	e.publish(ctx, notify.Event{Type: statusEvent[to], ApplicationID: app.ID, StageID: app.CurrentStageID, ActorUserID: actorUserID})
	return app, nil
}

var statusEvent = map[models.ApplicationStatus]notify.EventType{
	models.ApplicationApproved:  notify.EventApplicationApproved,
	models.ApplicationRejected:  notify.EventApplicationRejected,
	models.ApplicationCancelled: notify.EventApplicationCancelled,
}

func (e *Engine) publish(ctx context.Context, event notify.Event) {
	event.OccurredAt = e.now()
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish workflow event", map[string]interface{}{
			"eventType":     string(event.Type),
			"applicationId": event.ApplicationID,
			"error":         err,
		})
	}
}

func joinRoles(roles []models.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
