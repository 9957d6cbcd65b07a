// internal/workers/applications/cancel-application/models.go
package cancelapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	ActorUserID   string `json:"actorUserId"`
}

type Output struct {
	ApplicationID      string   `json:"applicationId"`
	Status             string   `json:"status"`
	CancelledSchedules []string `json:"cancelledSchedules"`
}
