package reconcile

import "fmt"

// ServiceState is a unit's externally visible lifecycle state.
type ServiceState int

// Service states. Failed is only reached when privileged operations run out
// of attempts.
const (
	Blocked ServiceState = iota
	Configuring
	Starting
	WaitingActive
	Active
	Failed
)

var stateNames = []string{"blocked", "configuring", "starting", "waiting-active", "active", "failed"}

func (s ServiceState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ServiceStates returns every state in declaration order.
func ServiceStates() []ServiceState {
	return []ServiceState{Blocked, Configuring, Starting, WaitingActive, Active, Failed}
}

// Status is the state plus a human-readable message.
type Status struct {
	State   ServiceState
	Message string
}

func (s Status) String() string {
	if s.Message == "" {
		return s.State.String()
	}
	return fmt.Sprintf("%s: %s", s.State, s.Message)
}
