// internal/models/stage.go
package models

// Stage is one ordered phase of the approval pipeline.
type Stage struct {
	ID                    string `json:"id" yaml:"id"`
	Name                  string `json:"name" yaml:"name"`
	OrderNumber           int    `json:"orderNumber" yaml:"order"`
	RequiredRoleToAdvance []Role `json:"requiredRoleToAdvance" yaml:"required_roles"`
}

// AllowsAdvanceBy reports whether role may move an application out of this stage.
func (s Stage) AllowsAdvanceBy(role Role) bool {
	for _, want := range s.RequiredRoleToAdvance {
		if role.Satisfies(want) {
			return true
		}
	}
	return false
}

// Requirement is a condition that must hold before its stage is complete.
type Requirement struct {
	ID          string `json:"id" yaml:"id"`
	StageID     string `json:"stageId" yaml:"stage"`
	Description string `json:"description" yaml:"description"`
	Mandatory   bool   `json:"mandatory" yaml:"mandatory"`
	// InspectionType links the requirement to the inspection whose completion satisfies it.
	InspectionType string `json:"inspectionType,omitempty" yaml:"inspection_type,omitempty"`
}
