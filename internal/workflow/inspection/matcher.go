// Package inspection matches inspectors to inspection requests and manages
// the booking lifecycle.
package inspection

import (
	"context"
	"sort"
	"strings"
	"time"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/metrics"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
)

// Candidate is an eligible inspector with its current load.
type Candidate struct {
	Inspector models.Inspector `json:"inspector"`
	Scheduled int              `json:"scheduled"`
}

type Matcher struct {
	inspectors store.Inspectors
	logger     logger.Logger
}

func NewMatcher(inspectors store.Inspectors, log logger.Logger) *Matcher {
	return &Matcher{inspectors: inspectors, logger: logger.Component(log, "inspector-matcher")}
}

// Rank lists inspectors free on day for inspectionType in district, fewest
// scheduled bookings first, then lowest id. An empty result is not an error.
func (m *Matcher) Rank(ctx context.Context, inspectionType, district string, day time.Time) ([]Candidate, error) {
	if err := validateQuery(inspectionType, district, day); err != nil {
		return nil, err
	}

	pool, err := m.inspectors.ListInspectors(ctx, district)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	eligible := make([]models.Inspector, 0, len(pool))
	ids := make([]int64, 0, len(pool))
	for _, in := range pool {
		if in.Available && in.AssignedDistrict == district && in.Performs(inspectionType) {
			eligible = append(eligible, in)
			ids = append(ids, in.ID)
		}
	}
	if len(eligible) == 0 {
		return []Candidate{}, nil
	}

	loads, err := m.inspectors.InspectorLoads(ctx, ids, models.Day(day))
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	out := make([]Candidate, 0, len(eligible))
	for _, in := range eligible {
		load := loads[in.ID]
		if load.BookedOnDay {
			continue
		}
		out = append(out, Candidate{Inspector: in, Scheduled: load.Scheduled})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scheduled != out[j].Scheduled {
			return out[i].Scheduled < out[j].Scheduled
		}
		return out[i].Inspector.ID < out[j].Inspector.ID
	})
	return out, nil
}

// FindAvailable returns the best ranked inspector or NONE_AVAILABLE.
func (m *Matcher) FindAvailable(ctx context.Context, inspectionType, district string, day time.Time) (*models.Inspector, error) {
	ranked, err := m.Rank(ctx, inspectionType, district, day)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		metrics.InspectorMatches.WithLabelValues("none_available").Inc()
		m.logger.Info("no inspector available", map[string]interface{}{
			"inspectionType": inspectionType,
			"district":       district,
			"date":           day.Format(models.DateLayout),
		})
		return nil, apperrors.NewNoneAvailableError(inspectionType, district, day.Format(models.DateLayout))
	}
	metrics.InspectorMatches.WithLabelValues("matched").Inc()
	best := ranked[0].Inspector
	return &best, nil
}

func validateQuery(inspectionType, district string, day time.Time) error {
	var missing []string
	if inspectionType == "" {
		missing = append(missing, "inspectionType")
	}
	if district == "" {
		missing = append(missing, "district")
	}
	if day.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing " + strings.Join(missing, ", "))
	}
	return nil
}
