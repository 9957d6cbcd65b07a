package inspection

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/lock"
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

var tracer = otel.Tracer("permit-workers/workflow/inspection")

const defaultLockTTL = 5 * time.Second

type SchedulerOptions struct {
	// LockTTL bounds how long a crashed holder can block booking for one
	// application and inspection type.
	LockTTL time.Duration
}

type Scheduler struct {
	catalog   *catalog.Catalog
	tracker   *requirements.Tracker
	store     store.Store
	matcher   *Matcher
	locker    lock.Locker
	directory directory.Directory
	publisher notify.Publisher
	opts      SchedulerOptions
	logger    logger.Logger
	now       func() time.Time
}

func NewScheduler(
	cat *catalog.Catalog,
	tracker *requirements.Tracker,
	st store.Store,
	matcher *Matcher,
	locker lock.Locker,
	dir directory.Directory,
	publisher notify.Publisher,
	opts SchedulerOptions,
	log logger.Logger,
) *Scheduler {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Scheduler{
		catalog:   cat,
		tracker:   tracker,
		store:     st,
		matcher:   matcher,
		locker:    locker,
		directory: dir,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Component(log, "inspection-scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create books an inspection. The result is scheduled when an inspector could
// be bound, pending otherwise. A live booking of the same type for the
// application is DUPLICATE_SCHEDULE.
func (s *Scheduler) Create(ctx context.Context, applicationID, inspectionType, district string, day time.Time) (*models.InspectionSchedule, error) {
	ctx, span := tracer.Start(ctx, "inspection.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("inspection.type", inspectionType),
	)

	if applicationID == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}
	if err := validateQuery(inspectionType, district, day); err != nil {
		return nil, err
	}
	day = models.Day(day)

	app, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("application", applicationID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	if app.Status.Closed() {
		return nil, apperrors.NewInvalidStateError("application", string(app.Status), "inspection booking")
	}

	release, err := s.locker.Acquire(ctx, lock.Key("schedule", applicationID, inspectionType), s.opts.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperrors.NewConflictError("inspection booking", applicationID+"/"+inspectionType)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release booking lock", map[string]interface{}{
				"applicationId": applicationID,
				"error":         err,
			})
		}
	}()

	if existing, err := s.store.FindLiveSchedule(ctx, applicationID, inspectionType); err == nil {
		return nil, apperrors.NewDuplicateScheduleError(applicationID, inspectionType, existing.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	candidates, err := s.matcher.Rank(ctx, inspectionType, district, day)
	if err != nil {
		return nil, err
	}

	booking := &models.InspectionSchedule{
		ID:             uuid.NewString(),
		ApplicationID:  applicationID,
		InspectionType: inspectionType,
		District:       district,
		ScheduledDate:  day,
	}
	for _, c := range candidates {
		inspectorID := c.Inspector.ID
		booking.InspectorID = &inspectorID
		booking.Status = models.ScheduleScheduled

		err := s.store.CreateSchedule(ctx, booking)
		if err == nil {
			if err := s.abandonIfClosed(ctx, booking); err != nil {
				return nil, err
			}
			metrics.InspectionBookings.WithLabelValues(string(models.ScheduleScheduled)).Inc()
			s.logger.Info("inspection scheduled", map[string]interface{}{
				"scheduleId":    booking.ID,
				"applicationId": applicationID,
				"inspectorId":   inspectorID,
				"date":          day.Format(models.DateLayout),
			})
			s.publish(ctx, booking, notify.EventInspectionScheduled, "")
			return booking, nil
		}
		if errors.Is(err, store.ErrSlotTaken) {
			// Someone else took this inspector for the day; try the next one.
			metrics.BookingRematches.Inc()
			s.logger.Debug("inspector slot taken, re-matching", map[string]interface{}{
				"inspectorId": inspectorID,
				"date":        day.Format(models.DateLayout),
			})
			continue
		}
		return nil, s.createFailed(ctx, err, applicationID, inspectionType)
	}

	booking.InspectorID = nil
	booking.Status = models.SchedulePending
	if err := s.store.CreateSchedule(ctx, booking); err != nil {
		return nil, s.createFailed(ctx, err, applicationID, inspectionType)
	}
	if err := s.abandonIfClosed(ctx, booking); err != nil {
		return nil, err
	}
	metrics.InspectionBookings.WithLabelValues(string(models.SchedulePending)).Inc()
	s.logger.Info("no inspector free, booking left pending", map[string]interface{}{
		"scheduleId":     booking.ID,
		"applicationId":  applicationID,
		"inspectionType": inspectionType,
		"district":       district,
		"date":           day.Format(models.DateLayout),
	})
	s.publish(ctx, booking, notify.EventInspectionPending, "")
	return booking, nil
}

// abandonIfClosed re-reads the application after a booking is stored. Cancel
// and reject commit the status before cascading to bookings, so a booking
// stored after the cascade listed them is caught here and cancelled.
func (s *Scheduler) abandonIfClosed(ctx context.Context, booking *models.InspectionSchedule) error {
	app, err := s.store.GetApplication(ctx, booking.ApplicationID)
	if err == nil && !app.Status.Closed() {
		return nil
	}
	if _, cerr := s.transition(ctx, booking,
		[]models.ScheduleStatus{models.SchedulePending, models.ScheduleScheduled}, models.ScheduleCancelled, nil); cerr != nil &&
		apperrors.CodeOf(cerr) != apperrors.ErrCodeInvalidState {
		s.logger.Error("failed to withdraw booking", map[string]interface{}{
			"scheduleId":    booking.ID,
			"applicationId": booking.ApplicationID,
			"error":         cerr,
		})
	}
	if err != nil {
		return apperrors.NewStorageUnavailableError(err)
	}
	s.logger.Info("application closed while booking, booking withdrawn", map[string]interface{}{
		"scheduleId":    booking.ID,
		"applicationId": booking.ApplicationID,
		"status":        app.Status,
	})
	return apperrors.NewInvalidStateError("application", string(app.Status), "inspection booking")
}

func (s *Scheduler) createFailed(ctx context.Context, err error, applicationID, inspectionType string) error {
	if !errors.Is(err, store.ErrDuplicate) {
		return apperrors.NewStorageUnavailableError(err)
	}
	existingID := ""
	if existing, ferr := s.store.FindLiveSchedule(ctx, applicationID, inspectionType); ferr == nil {
		existingID = existing.ID
	}
	return apperrors.NewDuplicateScheduleError(applicationID, inspectionType, existingID)
}

// Get returns one booking.
func (s *Scheduler) Get(ctx context.Context, scheduleID string) (*models.InspectionSchedule, error) {
	sch, err := s.store.GetSchedule(ctx, scheduleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("inspection schedule", scheduleID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	return sch, nil
}

// Complete marks a scheduled inspection done. Only the inspector bound to the
// booking may complete it. The caller that wins the transition marks the
// requirement mapped to the inspection type. Completing an already completed
// booking is INVALID_STATE unless its requirement is still unmarked, in which
// case the call records it.
func (s *Scheduler) Complete(ctx context.Context, scheduleID, actorUserID string) (*models.InspectionSchedule, error) {
	ctx, span := tracer.Start(ctx, "inspection.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("schedule.id", scheduleID))

	actor, err := s.directory.Lookup(ctx, actorUserID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
			return nil, apperrors.NewForbiddenError(fmt.Sprintf("unknown actor %s", actorUserID))
		}
		return nil, err
	}
	if actor.Role != models.RoleInspector {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not complete inspections; required: inspector", actor.Role))
	}

	sch, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sch.InspectorID == nil {
		return nil, apperrors.NewInvalidStateError("inspection schedule", string(sch.Status), string(models.ScheduleCompleted))
	}
	inspector, err := s.store.GetInspectorByUser(ctx, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("user %s has no inspector record", actor.ID))
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	if inspector.ID != *sch.InspectorID {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("inspection %s is assigned to another inspector", sch.ID))
	}

	// A completed booking whose requirement was never recorded is finished
	// by the same inspector's retry.
	resumed := sch.Status == models.ScheduleCompleted
	done := sch
	if !resumed {
		done, err = s.transition(ctx, sch, []models.ScheduleStatus{models.ScheduleScheduled}, models.ScheduleCompleted, nil)
		if err != nil {
			return nil, err
		}
		metrics.InspectionBookings.WithLabelValues(string(models.ScheduleCompleted)).Inc()
	}

	req, ok := s.catalog.RequirementForInspection(done.InspectionType)
	if !ok {
		if resumed {
			return nil, apperrors.NewInvalidStateError("inspection schedule", string(done.Status), string(models.ScheduleCompleted))
		}
		s.logger.Warn("no requirement mapped to inspection type", map[string]interface{}{
			"inspectionType": done.InspectionType,
			"scheduleId":     done.ID,
		})
		s.publish(ctx, done, notify.EventInspectionCompleted, actor.ID)
		return done, nil
	}

	changed, err := s.tracker.MarkComplete(ctx, done.ApplicationID, req.ID, actor.ID)
	if err != nil {
		s.logger.Error("inspection completed but requirement not recorded", map[string]interface{}{
			"scheduleId":    done.ID,
			"applicationId": done.ApplicationID,
			"requirementId": req.ID,
			"error":         err,
		})
		return nil, err
	}
	if resumed && !changed {
		return nil, apperrors.NewInvalidStateError("inspection schedule", string(done.Status), string(models.ScheduleCompleted))
	}
	if resumed {
		s.logger.Info("requirement recorded on completion retry", map[string]interface{}{
			"scheduleId":    done.ID,
			"requirementId": req.ID,
		})
	}

	s.publish(ctx, done, notify.EventInspectionCompleted, actor.ID)
	return done, nil
}

// Cancel cancels a pending or scheduled booking. Cancelled is terminal.
func (s *Scheduler) Cancel(ctx context.Context, scheduleID string) (*models.InspectionSchedule, error) {
	sch, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.transition(ctx, sch, []models.ScheduleStatus{models.SchedulePending, models.ScheduleScheduled}, models.ScheduleCancelled, nil)
	if err != nil {
		return nil, err
	}
	metrics.InspectionBookings.WithLabelValues(string(models.ScheduleCancelled)).Inc()
	s.logger.Info("inspection cancelled", map[string]interface{}{
		"scheduleId":    cancelled.ID,
		"applicationId": cancelled.ApplicationID,
	})
	s.publish(ctx, cancelled, notify.EventInspectionCancelled, "")
	return cancelled, nil
}

// AssignPending retries matching for a pending booking. When still nobody is
// free the booking is returned unchanged.
func (s *Scheduler) AssignPending(ctx context.Context, scheduleID string) (*models.InspectionSchedule, error) {
	sch, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sch.Status != models.SchedulePending {
		return nil, apperrors.NewInvalidStateError("inspection schedule", string(sch.Status), string(models.ScheduleScheduled))
	}

	candidates, err := s.matcher.Rank(ctx, sch.InspectionType, sch.District, sch.ScheduledDate)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		inspectorID := c.Inspector.ID
		assigned, err := s.store.TransitionSchedule(ctx, sch.ID,
			[]models.ScheduleStatus{models.SchedulePending}, models.ScheduleScheduled, &inspectorID)
		if errors.Is(err, store.ErrSlotTaken) {
			metrics.BookingRematches.Inc()
			continue
		}
		if err != nil {
			return nil, s.transitionFailed(ctx, sch, err, models.ScheduleScheduled)
		}
		metrics.InspectionBookings.WithLabelValues(string(models.ScheduleScheduled)).Inc()
		s.logger.Info("pending inspection assigned", map[string]interface{}{
			"scheduleId":  assigned.ID,
			"inspectorId": inspectorID,
		})
		s.publish(ctx, assigned, notify.EventInspectionScheduled, "")
		return assigned, nil
	}
	return sch, nil
}

// CancelForApplication cancels every live booking of an application and
// returns the ones it cancelled.
func (s *Scheduler) CancelForApplication(ctx context.Context, applicationID string) ([]models.InspectionSchedule, error) {
	all, err := s.store.ListSchedulesForApplication(ctx, applicationID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	cancelled := []models.InspectionSchedule{}
	for i := range all {
		if !all[i].Status.Active() {
			continue
		}
		c, err := s.transition(ctx, &all[i], []models.ScheduleStatus{models.SchedulePending, models.ScheduleScheduled}, models.ScheduleCancelled, nil)
		if apperrors.CodeOf(err) == apperrors.ErrCodeInvalidState {
			// Completed or cancelled concurrently.
			continue
		}
		if err != nil {
			return cancelled, err
		}
		s.publish(ctx, c, notify.EventInspectionCancelled, "")
		cancelled = append(cancelled, *c)
	}
	return cancelled, nil
}

// ListForApplication returns every booking of an application, oldest first.
func (s *Scheduler) ListForApplication(ctx context.Context, applicationID string) ([]models.InspectionSchedule, error) {
	all, err := s.store.ListSchedulesForApplication(ctx, applicationID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	return all, nil
}

func (s *Scheduler) transition(
	ctx context.Context,
	sch *models.InspectionSchedule,
	from []models.ScheduleStatus,
	to models.ScheduleStatus,
	inspectorID *int64,
) (*models.InspectionSchedule, error) {
	next, err := s.store.TransitionSchedule(ctx, sch.ID, from, to, inspectorID)
	if err != nil {
		return nil, s.transitionFailed(ctx, sch, err, to)
	}
	return next, nil
}

func (s *Scheduler) transitionFailed(ctx context.Context, sch *models.InspectionSchedule, err error, to models.ScheduleStatus) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError("inspection schedule", sch.ID)
	case errors.Is(err, store.ErrVersionConflict):
		current := sch.Status
		if fresh, gerr := s.store.GetSchedule(ctx, sch.ID); gerr == nil {
			current = fresh.Status
		}
		return apperrors.NewInvalidStateError("inspection schedule", string(current), string(to))
	default:
		return apperrors.NewStorageUnavailableError(err)
	}
}

func (s *Scheduler) publish(ctx context.Context, sch *models.InspectionSchedule, kind notify.EventType, actorUserID string) {
	event := notify.Event{
		Type:           kind,
		ApplicationID:  sch.ApplicationID,
		ScheduleID:     sch.ID,
		InspectionType: sch.InspectionType,
		ScheduledDate:  sch.ScheduledDate.Format(models.DateLayout),
		InspectorID:    sch.InspectorID,
		ActorUserID:    actorUserID,
		OccurredAt:     s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish inspection event", map[string]interface{}{
			"eventType":  string(kind),
			"scheduleId": sch.ID,
			"error":      err,
		})
	}
}
