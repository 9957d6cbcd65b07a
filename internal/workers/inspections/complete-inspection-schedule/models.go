// internal/workers/inspections/complete-inspection-schedule/models.go
package completeinspectionschedule

type Input struct {
	ScheduleID  string `json:"scheduleId"`
	ActorUserID string `json:"actorUserId"`
}

type Output struct {
	ScheduleID    string `json:"scheduleId"`
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	// RequirementID is the requirement the inspection satisfied, if any.
	RequirementID string `json:"requirementId,omitempty"`
}
