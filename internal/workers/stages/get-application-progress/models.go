// internal/workers/stages/get-application-progress/models.go
package getapplicationprogress

import "permit-workers/internal/models"

type Input struct {
	ApplicationID string `json:"applicationId"`
	ActorUserID   string `json:"actorUserId"`
}

type Output struct {
	CurrentStage    models.Stage             `json:"currentStage"`
	CompletedStages []models.Stage           `json:"completedStages"`
	PercentComplete float64                  `json:"percentComplete"`
	Status          models.ApplicationStatus `json:"status"`
	// StageRequirements is the completion state of the current stage.
	StageRequirements StageRequirements `json:"stageRequirements"`
}

type StageRequirements struct {
	Total            int      `json:"total"`
	Completed        int      `json:"completed"`
	MissingMandatory []string `json:"missingMandatory"`
}
