package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"permit-workers/internal/models"
)

// Memory is an in-process Store. It enforces the same uniqueness rules as the
// Postgres schema and is safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	now          func() time.Time
	users        map[string]models.User
	applications map[string]models.Application
	completions  map[string]models.RequirementCompletion
	audit        []models.CompletionAudit
	inspectors   map[int64]models.Inspector
	schedules    map[string]models.InspectionSchedule
}

func NewMemory() *Memory {
	return &Memory{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[string]models.User),
		applications: make(map[string]models.Application),
		completions:  make(map[string]models.RequirementCompletion),
		inspectors:   make(map[int64]models.Inspector),
		schedules:    make(map[string]models.InspectionSchedule),
	}
}

func completionKey(applicationID, requirementID string) string {
	return applicationID + "/" + requirementID
}

func (m *Memory) Ping(context.Context) error { return nil }

// PutUser registers or replaces a user.
func (m *Memory) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutInspector registers or replaces an inspector.
func (m *Memory) PutInspector(i models.Inspector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i.InspectionTypes = append([]string(nil), i.InspectionTypes...)
	m.inspectors[i.ID] = i
}

// AuditTrail returns a copy of the completion audit entries in write order.
func (m *Memory) AuditTrail() []models.CompletionAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CompletionAudit(nil), m.audit...)
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) CreateApplication(_ context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.applications[app.ID]; exists {
		return ErrDuplicate
	}
	now := m.now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Version == 0 {
		app.Version = 1
	}
	m.applications[app.ID] = *app
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &app, nil
}

func (m *Memory) UpdateApplication(_ context.Context, app *models.Application, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	app.Version = expectedVersion + 1
	app.CreatedAt = stored.CreatedAt
	app.UpdatedAt = m.now()
	m.applications[app.ID] = *app
	return nil
}

func (m *Memory) GetCompletion(_ context.Context, applicationID, requirementID string) (*models.RequirementCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.completions[completionKey(applicationID, requirementID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListCompletions(_ context.Context, applicationID string) ([]models.RequirementCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RequirementCompletion
	for _, c := range m.completions {
		if c.ApplicationID == applicationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequirementID < out[j].RequirementID })
	return out, nil
}

func (m *Memory) MarkComplete(_ context.Context, c models.RequirementCompletion, audit models.CompletionAudit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := completionKey(c.ApplicationID, c.RequirementID)
	if existing, ok := m.completions[key]; ok && existing.Completed {
		return false, nil
	}
	m.completions[key] = c
	m.audit = append(m.audit, audit)
	return true, nil
}

func (m *Memory) GetInspector(_ context.Context, id int64) (*models.Inspector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.inspectors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &i, nil
}

func (m *Memory) GetInspectorByUser(_ context.Context, userID string) (*models.Inspector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, i := range m.inspectors {
		if i.UserID == userID {
			found := i
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListInspectors(_ context.Context, district string) ([]models.Inspector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Inspector
	for _, i := range m.inspectors {
		if i.AssignedDistrict == district {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *Memory) InspectorLoads(_ context.Context, inspectorIDs []int64, day time.Time) (map[int64]InspectorLoad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[int64]bool, len(inspectorIDs))
	for _, id := range inspectorIDs {
		want[id] = true
	}
	day = models.Day(day)
	loads := make(map[int64]InspectorLoad)
	for _, s := range m.schedules {
		if s.InspectorID == nil || !want[*s.InspectorID] || !s.Status.Active() {
			continue
		}
		l := loads[*s.InspectorID]
		if s.ScheduledDate.Equal(day) {
			l.BookedOnDay = true
		}
		if s.Status == models.ScheduleScheduled {
			l.Scheduled++
		}
		loads[*s.InspectorID] = l
	}
	return loads, nil
}

// violates reports which unique rule s would break, ignoring the row with id skip.
func (m *Memory) violates(s models.InspectionSchedule, skip string) error {
	for id, other := range m.schedules {
		if id == skip {
			continue
		}
		if other.ApplicationID == s.ApplicationID && other.InspectionType == s.InspectionType &&
			other.Status != models.ScheduleCancelled && s.Status != models.ScheduleCancelled {
			return ErrDuplicate
		}
		if s.InspectorID != nil && other.InspectorID != nil && *s.InspectorID == *other.InspectorID &&
			s.Status.Active() && other.Status.Active() && s.ScheduledDate.Equal(other.ScheduledDate) {
			return ErrSlotTaken
		}
	}
	return nil
}

func (m *Memory) CreateSchedule(_ context.Context, s *models.InspectionSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schedules[s.ID]; exists {
		return ErrDuplicate
	}
	s.ScheduledDate = models.Day(s.ScheduledDate)
	if err := m.violates(*s, ""); err != nil {
		return err
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.schedules[s.ID] = cloneSchedule(*s)
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id string) (*models.InspectionSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneSchedule(s)
	return &out, nil
}

func (m *Memory) FindLiveSchedule(_ context.Context, applicationID, inspectionType string) (*models.InspectionSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.schedules {
		if s.ApplicationID == applicationID && s.InspectionType == inspectionType && s.Status != models.ScheduleCancelled {
			out := cloneSchedule(s)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListSchedulesForApplication(_ context.Context, applicationID string) ([]models.InspectionSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.InspectionSchedule
	for _, s := range m.schedules {
		if s.ApplicationID == applicationID {
			out = append(out, cloneSchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) TransitionSchedule(_ context.Context, id string, from []models.ScheduleStatus, to models.ScheduleStatus, inspectorID *int64) (*models.InspectionSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(s.Status, from) {
		return nil, ErrVersionConflict
	}
	next := cloneSchedule(s)
	next.Status = to
	if inspectorID != nil {
		bound := *inspectorID
		next.InspectorID = &bound
	}
	if err := m.violates(next, id); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now()
	m.schedules[id] = next
	out := cloneSchedule(next)
	return &out, nil
}

func cloneSchedule(s models.InspectionSchedule) models.InspectionSchedule {
	if s.InspectorID != nil {
		id := *s.InspectorID
		s.InspectorID = &id
	}
	return s
}
