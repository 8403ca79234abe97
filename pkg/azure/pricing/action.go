package pricing

import (
	"fmt"
	"net/http"
	"strings"
)

// Action is one of the four operations the pricing engine performs against a
// machine's Defender for Servers pricing subresource.
type Action string

const (
	// ActionRead fetches the effective pricing configuration.
	ActionRead Action = "read"
	// ActionFree sets the Free tier.
	ActionFree Action = "free"
	// ActionStandard sets the Standard tier with the P1 sub plan.
	ActionStandard Action = "standard"
	// ActionDelete removes the machine-level configuration so the
	// subscription default applies again.
	ActionDelete Action = "delete"
)

// Actions lists every valid action.
var Actions = []Action{ActionRead, ActionFree, ActionStandard, ActionDelete}

// ParseAction maps a flag value to an Action, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionRead:
		return ActionRead, nil
	case ActionFree:
		return ActionFree, nil
	case ActionStandard:
		return ActionStandard, nil
	case ActionDelete:
		return ActionDelete, nil
	}
	return "", fmt.Errorf("unknown action %q (want read, free, standard or delete)", s)
}

// Mutates reports whether the action changes pricing state.
func (a Action) Mutates() bool {
	return a != ActionRead
}

// method returns the HTTP verb the action maps to.
func (a Action) method() string {
	switch a {
	case ActionFree, ActionStandard:
		return http.MethodPut
	case ActionDelete:
		return http.MethodDelete
	}
	return http.MethodGet
}
