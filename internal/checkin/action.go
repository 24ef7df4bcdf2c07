package checkin

import "fmt"

// Action is the closed set of door operations. Unrecognized strings
// are rejected at the API boundary by ParseAction, never deeper.
type Action int

const (
	ActionCheckIn Action = iota
	ActionCheckOut
)

func (a Action) String() string {
	switch a {
	case ActionCheckIn:
		return "check_in"
	case ActionCheckOut:
		return "check_out"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

func ParseAction(s string) (Action, error) {
	switch s {
	case "check_in":
		return ActionCheckIn, nil
	case "check_out":
		return ActionCheckOut, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}
