package access

import (
	"context"
	"errors"
	"fmt"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/metrics"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/requirements"
)

// Request asks whether an actor may perform Action on an application.
// StageID is optional and defaults to the application's current stage.
type Request struct {
	ActorUserID   string
	ApplicationID string
	StageID       string
	Action        Action
}

// Decision describes a granted request.
type Decision struct {
	Actor          models.User         `json:"actor"`
	Application    *models.Application `json:"-"`
	StageID        string              `json:"stageId"`
	CurrentStageID string              `json:"currentStageId"`
	Owner          bool                `json:"owner"`
}

// Guard holds no state of its own; every check reads through to the store.
type Guard struct {
	catalog   *catalog.Catalog
	tracker   *requirements.Tracker
	apps      store.Applications
	directory directory.Directory
	logger    logger.Logger
}

func NewGuard(
	cat *catalog.Catalog,
	tracker *requirements.Tracker,
	apps store.Applications,
	dir directory.Directory,
	log logger.Logger,
) *Guard {
	return &Guard{
		catalog:   cat,
		tracker:   tracker,
		apps:      apps,
		directory: dir,
		logger:    logger.Component(log, "access-guard"),
	}
}

// Check grants the request or returns FORBIDDEN, STAGE_LOCKED,
// STAGE_NOT_COMPLETE or NOT_FOUND.
func (g *Guard) Check(ctx context.Context, req Request) (decision *Decision, err error) {
	defer func() {
		result := "allow"
		if err != nil {
			result = string(apperrors.CodeOf(err))
		}
		metrics.AccessDecisions.WithLabelValues(string(req.Action), result).Inc()
		if err != nil {
			g.logger.Debug("access denied", map[string]interface{}{
				"actorUserId":   req.ActorUserID,
				"applicationId": req.ApplicationID,
				"stageId":       req.StageID,
				"action":        string(req.Action),
				"reason":        string(apperrors.CodeOf(err)),
			})
		}
	}()

	if req.ApplicationID == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}

	actor, err := g.resolveActor(ctx, req.ActorUserID)
	if err != nil {
		return nil, err
	}
	if !Allowed(actor.Role, req.Action) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not %s", actor.Role, req.Action))
	}

	app, err := g.apps.GetApplication(ctx, req.ApplicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("application", req.ApplicationID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	owner := actor.ID == app.OwnerUserID
	if !owner && !readsAnyApplication(actor.Role) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("user %s does not own application %s", actor.ID, app.ID))
	}

	current, err := g.catalog.Stage(app.CurrentStageID)
	if err != nil {
		return nil, err
	}
	target := current
	if req.StageID != "" {
		if target, err = g.catalog.Stage(req.StageID); err != nil {
			return nil, err
		}
	}
	if !actor.Role.Privileged() && target.OrderNumber > current.OrderNumber {
		return nil, apperrors.NewStageLockedError(target.ID, target.OrderNumber, current.OrderNumber)
	}

	if req.Action == ActionProceed {
		completion, err := g.tracker.StageCompletion(ctx, app.ID, current.ID)
		if err != nil {
			return nil, err
		}
		if !completion.AllMandatoryComplete {
			return nil, apperrors.NewStageNotCompleteError(current.ID, completion.MissingMandatory)
		}
	}

	return &Decision{
		Actor:          *actor,
		Application:    app,
		StageID:        target.ID,
		CurrentStageID: current.ID,
		Owner:          owner,
	}, nil
}

// Authorize checks an action that is not scoped to an existing application,
// such as opening one.
func (g *Guard) Authorize(ctx context.Context, actorUserID string, action Action) (*models.User, error) {
	actor, err := g.resolveActor(ctx, actorUserID)
	if err != nil {
		return nil, err
	}
	if !Allowed(actor.Role, action) {
		metrics.AccessDecisions.WithLabelValues(string(action), string(apperrors.ErrCodeForbidden)).Inc()
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not %s", actor.Role, action))
	}
	metrics.AccessDecisions.WithLabelValues(string(action), "allow").Inc()
	return actor, nil
}

func (g *Guard) resolveActor(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperrors.NewForbiddenError("actor is required")
	}
	actor, err := g.directory.Lookup(ctx, userID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
			return nil, apperrors.NewForbiddenError(fmt.Sprintf("unknown actor %s", userID))
		}
		return nil, err
	}
	return actor, nil
}

// readsAnyApplication covers inspectors, who need to see the applications they inspect.
func readsAnyApplication(r models.Role) bool {
	return r.Privileged() || r == models.RoleInspector
}
