// internal/models/inspection.go
package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of a scheduling day.
const DateLayout = "2006-01-02"

// ScheduleStatus is the state of an inspection booking.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Active reports whether the booking still occupies a calendar slot.
func (s ScheduleStatus) Active() bool {
	return s == SchedulePending || s == ScheduleScheduled
}

// Inspector is a field inspector who can be booked for inspections.
type Inspector struct {
	ID               int64    `json:"id"`
	UserID           string   `json:"userId"`
	AssignedDistrict string   `json:"assignedDistrict"`
	InspectionTypes  []string `json:"inspectionTypes"`
	Available        bool     `json:"available"`
}

// Performs reports whether the inspector is qualified for inspectionType.
func (i Inspector) Performs(inspectionType string) bool {
	for _, t := range i.InspectionTypes {
		if t == inspectionType {
			return true
		}
	}
	return false
}

// InspectionSchedule is a booking of an inspection for an application.
// InspectorID is nil while the booking is pending.
type InspectionSchedule struct {
	ID             string         `json:"id"`
	ApplicationID  string         `json:"applicationId"`
	InspectorID    *int64         `json:"inspectorId,omitempty"`
	InspectionType string         `json:"inspectionType"`
	District       string         `json:"district"`
	ScheduledDate  time.Time      `json:"scheduledDate"`
	Status         ScheduleStatus `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Day truncates t to its UTC calendar day, the scheduling unit.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD scheduling day.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", raw, DateLayout)
	}
	return t, nil
}
