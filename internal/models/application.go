// internal/models/application.go
package models

import "time"

// ApplicationStatus is the lifecycle status of a permit application.
type ApplicationStatus string

const (
	ApplicationDraft     ApplicationStatus = "draft"
	ApplicationInReview  ApplicationStatus = "in_review"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationCancelled ApplicationStatus = "cancelled"
)

// Closed reports whether the status is absorbing for stage progression.
func (s ApplicationStatus) Closed() bool {
	return s == ApplicationRejected || s == ApplicationCancelled
}

// Application is a construction permit application moving through the stages.
type Application struct {
	ID             string            `json:"id"`
	OwnerUserID    string            `json:"ownerUserId"`
	CurrentStageID string            `json:"currentStageId"`
	Status         ApplicationStatus `json:"status"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// RequirementCompletion is the completion state of one requirement for one application.
// A missing record means the requirement is incomplete.
type RequirementCompletion struct {
	ApplicationID     string     `json:"applicationId"`
	RequirementID     string     `json:"requirementId"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedByUserID string     `json:"completedByUserId,omitempty"`
}

// CompletionAudit is one append-only audit trail entry written with a completion.
type CompletionAudit struct {
	ApplicationID string    `json:"applicationId"`
	RequirementID string    `json:"requirementId"`
	ActorUserID   string    `json:"actorUserId"`
	RecordedAt    time.Time `json:"recordedAt"`
}
