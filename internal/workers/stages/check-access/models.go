// internal/workers/stages/check-access/models.go
package checkaccess

type Input struct {
	ActorUserID   string `json:"actorUserId"`
	ApplicationID string `json:"applicationId"`
	StageID       string `json:"stageId,omitempty"`
	Action        string `json:"action,omitempty"`
}

type Output struct {
	Allowed        bool                   `json:"allowed"`
	StageID        string                 `json:"stageId,omitempty"`
	CurrentStageID string                 `json:"currentStageId,omitempty"`
	DenialCode     string                 `json:"denialCode,omitempty"`
	DenialReason   string                 `json:"denialReason,omitempty"`
	Denial         map[string]interface{} `json:"denial,omitempty"`
}
