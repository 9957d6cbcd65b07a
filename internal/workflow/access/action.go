// Package access authorizes actors against applications and their stages.
package access

import (
	"fmt"

	"permit-workers/internal/models"
)

// Action is something an actor asks to do with an application.
type Action string

const (
	ActionView               Action = "view"
	ActionUpdate             Action = "update"
	ActionProceed            Action = "proceed"
	ActionAdvance            Action = "advance"
	ActionMarkRequirement    Action = "mark_requirement"
	ActionScheduleInspection Action = "schedule_inspection"
	ActionCompleteInspection Action = "complete_inspection"
	ActionCancelInspection   Action = "cancel_inspection"
	ActionAssignInspection   Action = "assign_inspection"
	ActionCancelApplication  Action = "cancel_application"
	ActionDecide             Action = "decide"
	ActionOpenApplication    Action = "open_application"
)

// ParseAction rejects names outside the matrix.
func ParseAction(raw string) (Action, error) {
	if raw == "" {
		return ActionView, nil
	}
	a := Action(raw)
	for _, known := range allActions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

var allActions = []Action{
	ActionView, ActionUpdate, ActionProceed, ActionAdvance, ActionMarkRequirement,
	ActionScheduleInspection, ActionCompleteInspection, ActionCancelInspection,
	ActionAssignInspection, ActionCancelApplication, ActionDecide, ActionOpenApplication,
}

type actionSet map[Action]struct{}

func setOf(actions ...Action) actionSet {
	s := make(actionSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

var adminActions = setOf(
	ActionView, ActionUpdate, ActionProceed, ActionAdvance, ActionMarkRequirement,
	ActionScheduleInspection, ActionCancelInspection, ActionAssignInspection,
	ActionCancelApplication, ActionDecide, ActionOpenApplication,
)

// permissions is the one permission matrix. superadmin shares the admin set.
var permissions = map[models.Role]actionSet{
	models.RoleApplicant: setOf(
		ActionView, ActionUpdate, ActionProceed,
		ActionScheduleInspection, ActionCancelInspection, ActionCancelApplication,
		ActionOpenApplication,
	),
	models.RoleInspector:  setOf(ActionView, ActionMarkRequirement, ActionCompleteInspection),
	models.RoleAdmin:      adminActions,
	models.RoleSuperAdmin: adminActions,
}

// Allowed reports whether role carries action in the matrix.
func Allowed(role models.Role, action Action) bool {
	_, ok := permissions[role][action]
	return ok
}
