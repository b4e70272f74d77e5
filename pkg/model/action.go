package model

import "fmt"

// ActionType is the kind of corrective operation.
type ActionType string

const (
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Action is a corrective operation against the derived index.
type Action struct {
	Type ActionType
	ID   string
}

// Update returns an update action for id.
func Update(id string) Action {
	return Action{Type: ActionUpdate, ID: id}
}

// Delete returns a delete action for id.
func Delete(id string) Action {
	return Action{Type: ActionDelete, ID: id}
}

func (a Action) String() string {
	return fmt.Sprintf("%s(%s)", a.Type, a.ID)
}
