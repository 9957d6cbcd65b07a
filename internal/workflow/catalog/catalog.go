// Package catalog holds the immutable, ordered stage definitions and their requirements.
package catalog

import (
	"fmt"
	"sort"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/models"
)

// Catalog is read-only after New returns and safe for concurrent use.
type Catalog struct {
	stages        []models.Stage
	byID          map[string]int
	requirements  map[string][]models.Requirement
	reqByID       map[string]models.Requirement
	reqByInspType map[string]models.Requirement
}

// New validates and freezes a catalog. Stage order numbers must be unique and
// contiguous starting at 1; callers cannot rely on runtime order values.
func New(stages []models.Stage, requirements []models.Requirement) (*Catalog, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("catalog: no stages defined")
	}

	sorted := make([]models.Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderNumber < sorted[j].OrderNumber })

	c := &Catalog{
		stages:        sorted,
		byID:          make(map[string]int, len(sorted)),
		requirements:  make(map[string][]models.Requirement, len(sorted)),
		reqByID:       make(map[string]models.Requirement, len(requirements)),
		reqByInspType: make(map[string]models.Requirement),
	}

	for i, s := range sorted {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog: stage at order %d has no id", s.OrderNumber)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate stage id %q", s.ID)
		}
		if s.OrderNumber != i+1 {
			if i > 0 && s.OrderNumber == sorted[i-1].OrderNumber {
				return nil, fmt.Errorf("catalog: stages %q and %q share order %d", sorted[i-1].ID, s.ID, s.OrderNumber)
			}
			return nil, fmt.Errorf("catalog: stage %q has order %d, expected %d", s.ID, s.OrderNumber, i+1)
		}
		if len(s.RequiredRoleToAdvance) == 0 {
			return nil, fmt.Errorf("catalog: stage %q names no role allowed to advance", s.ID)
		}
		for _, r := range s.RequiredRoleToAdvance {
			if !r.Valid() {
				return nil, fmt.Errorf("catalog: stage %q references unknown role %q", s.ID, r)
			}
		}
		c.byID[s.ID] = i
	}

	for _, r := range requirements {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: requirement of stage %q has no id", r.StageID)
		}
		if _, dup := c.reqByID[r.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate requirement id %q", r.ID)
		}
		if _, ok := c.byID[r.StageID]; !ok {
			return nil, fmt.Errorf("catalog: requirement %q references unknown stage %q", r.ID, r.StageID)
		}
		if r.InspectionType != "" {
			if other, dup := c.reqByInspType[r.InspectionType]; dup {
				return nil, fmt.Errorf("catalog: inspection type %q mapped by both %q and %q", r.InspectionType, other.ID, r.ID)
			}
			c.reqByInspType[r.InspectionType] = r
		}
		c.reqByID[r.ID] = r
		c.requirements[r.StageID] = append(c.requirements[r.StageID], r)
	}

	return c, nil
}

// List returns the stages in ascending order.
func (c *Catalog) List() []models.Stage {
	out := make([]models.Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Len is the number of stages.
func (c *Catalog) Len() int { return len(c.stages) }

func (c *Catalog) Stage(id string) (models.Stage, error) {
	i, ok := c.byID[id]
	if !ok {
		return models.Stage{}, apperrors.NewNotFoundError("stage", id)
	}
	return c.stages[i], nil
}

// RequirementsFor returns the requirements of stageID in definition order.
func (c *Catalog) RequirementsFor(stageID string) ([]models.Requirement, error) {
	if _, ok := c.byID[stageID]; !ok {
		return nil, apperrors.NewNotFoundError("stage", stageID)
	}
	reqs := c.requirements[stageID]
	out := make([]models.Requirement, len(reqs))
	copy(out, reqs)
	return out, nil
}

// First is the initial stage of every application.
func (c *Catalog) First() models.Stage { return c.stages[0] }

// Last is the highest-order stage.
func (c *Catalog) Last() models.Stage { return c.stages[len(c.stages)-1] }

// Next returns the stage with order s.OrderNumber+1, or false at the last stage.
func (c *Catalog) Next(s models.Stage) (models.Stage, bool) {
	if s.OrderNumber < 1 || s.OrderNumber >= len(c.stages) {
		return models.Stage{}, false
	}
	return c.stages[s.OrderNumber], true
}

// IsLast reports whether stageID is the final stage.
func (c *Catalog) IsLast(stageID string) bool {
	return c.Last().ID == stageID
}

func (c *Catalog) Requirement(id string) (models.Requirement, error) {
	r, ok := c.reqByID[id]
	if !ok {
		return models.Requirement{}, apperrors.NewNotFoundError("requirement", id)
	}
	return r, nil
}

// RequirementForInspection returns the requirement satisfied by completing an
// inspection of inspectionType.
func (c *Catalog) RequirementForInspection(inspectionType string) (models.Requirement, bool) {
	r, ok := c.reqByInspType[inspectionType]
	return r, ok
}
