// internal/workers/inspections/cancel-inspection-schedule/models.go
package cancelinspectionschedule

type Input struct {
	ScheduleID  string `json:"scheduleId"`
	ActorUserID string `json:"actorUserId"`
}

type Output struct {
	ScheduleID string `json:"scheduleId"`
	Status     string `json:"status"`
}
