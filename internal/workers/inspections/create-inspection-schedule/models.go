// internal/workers/inspections/create-inspection-schedule/models.go
package createinspectionschedule

type Input struct {
	ApplicationID  string `json:"applicationId"`
	ActorUserID    string `json:"actorUserId"`
	InspectionType string `json:"inspectionType"`
	District       string `json:"district"`
	Date           string `json:"date"` // YYYY-MM-DD
}

type Output struct {
	ScheduleID     string `json:"scheduleId"`
	Status         string `json:"status"` // scheduled | pending
	InspectorID    *int64 `json:"inspectorId,omitempty"`
	InspectionType string `json:"inspectionType"`
	ScheduledDate  string `json:"scheduledDate"`
}
