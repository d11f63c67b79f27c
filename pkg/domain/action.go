package domain

import "strings"

// DatabaseAction is the merge policy deciding how incoming rows meet existing rows.
type DatabaseAction string

const (
	ActionAdd               DatabaseAction = "ADD"
	ActionAddUpdateExisting DatabaseAction = "ADD_UPDATE_EXISTING"
	ActionUpdate            DatabaseAction = "UPDATE"
)

// Known reports whether a is one of the three named policies.
func (a DatabaseAction) Known() bool {
	switch a {
	case ActionAdd, ActionAddUpdateExisting, ActionUpdate:
		return true
	}
	return false
}

// ParseDatabaseAction validates a policy literal at the boundary. Unknown
// values are rejected with KindUnknownAction.
func ParseDatabaseAction(s string) (DatabaseAction, error) {
	a := DatabaseAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Known() {
		return "", &ImportError{Kind: KindUnknownAction, Message: "unknown database action " + s}
	}
	return a, nil
}
