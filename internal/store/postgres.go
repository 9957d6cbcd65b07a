package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"permit-workers/internal/models"

	"github.com/lib/pq"
)

const (
	uniqueViolation           = "23505"
	inspectorDayConstraint    = "uq_schedules_inspector_day"
	applicationTypeConstraint = "uq_schedules_application_type"
)

// Postgres is the database/sql Store backed by lib/pq.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		switch pqErr.Constraint {
		case inspectorDayConstraint:
			return ErrSlotTaken
		case applicationTypeConstraint:
			return ErrDuplicate
		default:
			return ErrDuplicate
		}
	}
	return err
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id = $1`, id).Scan(&u.ID, &role)
	if err != nil {
		return nil, translate(err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (p *Postgres) CreateApplication(ctx context.Context, app *models.Application) error {
	now := p.now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Version == 0 {
		app.Version = 1
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO applications (id, owner_user_id, current_stage_id, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		app.ID, app.OwnerUserID, app.CurrentStageID, string(app.Status), app.Version, app.CreatedAt, app.UpdatedAt)
	return translate(err)
}

func (p *Postgres) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var (
		app    models.Application
		status string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, current_stage_id, status, version, created_at, updated_at
		 FROM applications WHERE id = $1`, id).
		Scan(&app.ID, &app.OwnerUserID, &app.CurrentStageID, &status, &app.Version, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	app.Status = models.ApplicationStatus(status)
	return &app, nil
}

func (p *Postgres) UpdateApplication(ctx context.Context, app *models.Application, expectedVersion int64) error {
	now := p.now()
	res, err := p.db.ExecContext(ctx,
		`UPDATE applications
		 SET current_stage_id = $1, status = $2, version = version + 1, updated_at = $3
		 WHERE id = $4 AND version = $5`,
		app.CurrentStageID, string(app.Status), now, app.ID, expectedVersion)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := p.GetApplication(ctx, app.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	app.Version = expectedVersion + 1
	app.UpdatedAt = now
	return nil
}

func (p *Postgres) GetCompletion(ctx context.Context, applicationID, requirementID string) (*models.RequirementCompletion, error) {
	c, err := scanCompletion(p.db.QueryRowContext(ctx,
		`SELECT application_id, requirement_id, completed, completed_at, completed_by_user_id
		 FROM requirement_completions WHERE application_id = $1 AND requirement_id = $2`,
		applicationID, requirementID))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (p *Postgres) ListCompletions(ctx context.Context, applicationID string) ([]models.RequirementCompletion, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT application_id, requirement_id, completed, completed_at, completed_by_user_id
		 FROM requirement_completions WHERE application_id = $1 ORDER BY requirement_id`, applicationID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.RequirementCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompletion(row rowScanner) (*models.RequirementCompletion, error) {
	var (
		c           models.RequirementCompletion
		completedAt sql.NullTime
		completedBy sql.NullString
	)
	if err := row.Scan(&c.ApplicationID, &c.RequirementID, &c.Completed, &completedAt, &completedBy); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	c.CompletedByUserID = completedBy.String
	return &c, nil
}

// MarkComplete upserts the completion only when it is not complete yet and writes
// the audit row in the same transaction.
func (p *Postgres) MarkComplete(ctx context.Context, c models.RequirementCompletion, audit models.CompletionAudit) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO requirement_completions (application_id, requirement_id, completed, completed_at, completed_by_user_id)
		 VALUES ($1, $2, true, $3, $4)
		 ON CONFLICT (application_id, requirement_id) DO UPDATE
		 SET completed = true, completed_at = EXCLUDED.completed_at, completed_by_user_id = EXCLUDED.completed_by_user_id
		 WHERE requirement_completions.completed = false`,
		c.ApplicationID, c.RequirementID, c.CompletedAt, c.CompletedByUserID)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO requirement_completion_audit (application_id, requirement_id, actor_user_id, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		audit.ApplicationID, audit.RequirementID, audit.ActorUserID, audit.RecordedAt); err != nil {
		return false, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

const inspectorColumns = `id, user_id, assigned_district, inspection_types, available`

func scanInspector(row rowScanner) (*models.Inspector, error) {
	var i models.Inspector
	if err := row.Scan(&i.ID, &i.UserID, &i.AssignedDistrict, pq.Array(&i.InspectionTypes), &i.Available); err != nil {
		return nil, err
	}
	return &i, nil
}

func (p *Postgres) GetInspector(ctx context.Context, id int64) (*models.Inspector, error) {
	i, err := scanInspector(p.db.QueryRowContext(ctx,
		`SELECT `+inspectorColumns+` FROM inspectors WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return i, nil
}

func (p *Postgres) GetInspectorByUser(ctx context.Context, userID string) (*models.Inspector, error) {
	i, err := scanInspector(p.db.QueryRowContext(ctx,
		`SELECT `+inspectorColumns+` FROM inspectors WHERE user_id = $1`, userID))
	if err != nil {
		return nil, translate(err)
	}
	return i, nil
}

func (p *Postgres) ListInspectors(ctx context.Context, district string) ([]models.Inspector, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+inspectorColumns+` FROM inspectors WHERE assigned_district = $1 ORDER BY id`, district)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.Inspector
	for rows.Next() {
		i, err := scanInspector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (p *Postgres) InspectorLoads(ctx context.Context, inspectorIDs []int64, day time.Time) (map[int64]InspectorLoad, error) {
	loads := make(map[int64]InspectorLoad)
	if len(inspectorIDs) == 0 {
		return loads, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT inspector_id,
		        COUNT(*) FILTER (WHERE scheduled_date = $2) AS on_day,
		        COUNT(*) FILTER (WHERE status = 'scheduled') AS scheduled
		 FROM inspection_schedules
		 WHERE inspector_id = ANY($1) AND status IN ('pending', 'scheduled')
		 GROUP BY inspector_id`,
		pq.Array(inspectorIDs), models.Day(day))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id               int64
			onDay, scheduled int
		)
		if err := rows.Scan(&id, &onDay, &scheduled); err != nil {
			return nil, err
		}
		loads[id] = InspectorLoad{BookedOnDay: onDay > 0, Scheduled: scheduled}
	}
	return loads, rows.Err()
}

const scheduleColumns = `id, application_id, inspector_id, inspection_type, district, scheduled_date, status, created_at, updated_at`

func scanSchedule(row rowScanner) (*models.InspectionSchedule, error) {
	var (
		s           models.InspectionSchedule
		inspectorID sql.NullInt64
		status      string
	)
	if err := row.Scan(&s.ID, &s.ApplicationID, &inspectorID, &s.InspectionType, &s.District,
		&s.ScheduledDate, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if inspectorID.Valid {
		id := inspectorID.Int64
		s.InspectorID = &id
	}
	s.ScheduledDate = models.Day(s.ScheduledDate)
	s.Status = models.ScheduleStatus(status)
	return &s, nil
}

func (p *Postgres) CreateSchedule(ctx context.Context, s *models.InspectionSchedule) error {
	now := p.now()
	s.CreatedAt, s.UpdatedAt = now, now
	s.ScheduledDate = models.Day(s.ScheduledDate)

	var inspectorID sql.NullInt64
	if s.InspectorID != nil {
		inspectorID = sql.NullInt64{Int64: *s.InspectorID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO inspection_schedules (`+scheduleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.ApplicationID, inspectorID, s.InspectionType, s.District, s.ScheduledDate,
		string(s.Status), s.CreatedAt, s.UpdatedAt)
	return translate(err)
}

func (p *Postgres) GetSchedule(ctx context.Context, id string) (*models.InspectionSchedule, error) {
	s, err := scanSchedule(p.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM inspection_schedules WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) FindLiveSchedule(ctx context.Context, applicationID, inspectionType string) (*models.InspectionSchedule, error) {
	s, err := scanSchedule(p.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM inspection_schedules
		 WHERE application_id = $1 AND inspection_type = $2 AND status <> 'cancelled'`,
		applicationID, inspectionType))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) ListSchedulesForApplication(ctx context.Context, applicationID string) ([]models.InspectionSchedule, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM inspection_schedules
		 WHERE application_id = $1 ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.InspectionSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) TransitionSchedule(ctx context.Context, id string, from []models.ScheduleStatus, to models.ScheduleStatus, inspectorID *int64) (*models.InspectionSchedule, error) {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}
	var bind sql.NullInt64
	if inspectorID != nil {
		bind = sql.NullInt64{Int64: *inspectorID, Valid: true}
	}

	s, err := scanSchedule(p.db.QueryRowContext(ctx,
		`UPDATE inspection_schedules
		 SET status = $1, inspector_id = COALESCE($2, inspector_id), updated_at = $3
		 WHERE id = $4 AND status = ANY($5)
		 RETURNING `+scheduleColumns,
		string(to), bind, p.now(), id, pq.Array(fromStatuses)))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, translate(err)
	}
	if _, err := p.GetSchedule(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrVersionConflict
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
