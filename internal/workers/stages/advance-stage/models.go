// internal/workers/stages/advance-stage/models.go
package advancestage

type Input struct {
	ApplicationID string `json:"applicationId"`
	ActorUserID   string `json:"actorUserId"`
	// ExpectedStageID, when set, is the stage the process believes the
	// application is in. A replay after the stage moved is ALREADY_ADVANCED.
	ExpectedStageID string `json:"expectedStageId,omitempty"`
}

type Output struct {
	Outcome         string `json:"outcome"` // ADVANCED | TERMINAL_STAGE | ALREADY_ADVANCED
	PreviousStageID string `json:"previousStageId"`
	CurrentStageID  string `json:"currentStageId"`
	Status          string `json:"status"`
	Version         int64  `json:"version"`
}
