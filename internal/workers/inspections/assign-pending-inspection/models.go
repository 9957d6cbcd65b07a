// internal/workers/inspections/assign-pending-inspection/models.go
package assignpendinginspection

type Input struct {
	ScheduleID  string `json:"scheduleId"`
	ActorUserID string `json:"actorUserId"`
}

type Output struct {
	Assigned    bool   `json:"assigned"`
	ScheduleID  string `json:"scheduleId"`
	Status      string `json:"status"`
	InspectorID *int64 `json:"inspectorId,omitempty"`
}
