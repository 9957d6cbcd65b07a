// internal/workers/stages/list-stages/models.go
package liststages

import "permit-workers/internal/models"

type Input struct{}

type StageView struct {
	models.Stage
	Requirements []models.Requirement `json:"requirements"`
}

type Output struct {
	Stages []StageView `json:"stages"`
}
