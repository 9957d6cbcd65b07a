// internal/workers/inspections/find-inspector/models.go
package findinspector

import "permit-workers/internal/models"

type Input struct {
	InspectionType string `json:"inspectionType"`
	District       string `json:"district"`
	Date           string `json:"date"` // YYYY-MM-DD
}

type Output struct {
	Found     bool              `json:"found"`
	Inspector *models.Inspector `json:"inspector,omitempty"`
}
