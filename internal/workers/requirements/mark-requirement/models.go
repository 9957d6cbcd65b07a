// internal/workers/requirements/mark-requirement/models.go
package markrequirement

type Input struct {
	ApplicationID string `json:"applicationId"`
	RequirementID string `json:"requirementId"`
	ActorUserID   string `json:"actorUserId"`
}

type Output struct {
	// Changed is false when the requirement was already complete.
	Changed       bool     `json:"changed"`
	StageID       string   `json:"stageId"`
	StageComplete bool     `json:"stageComplete"`
	Missing       []string `json:"missingRequirements"`
}
