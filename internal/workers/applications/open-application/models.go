// internal/workers/applications/open-application/models.go
package openapplication

type Input struct {
	OwnerUserID string `json:"ownerUserId"`
}

type Output struct {
	ApplicationID  string `json:"applicationId"`
	CurrentStageID string `json:"currentStageId"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"` // RFC 3339
}
