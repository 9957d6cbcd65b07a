// internal/workers/applications/decide-application/models.go
package decideapplication

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type Input struct {
	ApplicationID string `json:"applicationId"`
	ActorUserID   string `json:"actorUserId"`
	Decision      string `json:"decision"` // approve | reject
}

type Output struct {
	ApplicationID      string   `json:"applicationId"`
	Status             string   `json:"status"`
	CancelledSchedules []string `json:"cancelledSchedules"`
}
