package engine

import "sync/atomic"

// State is the engine lifecycle state. Transitions are forward-only:
// IDLE -> RUNNING -> DRAINING -> STOPPED.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// engineState is a single atomic word guarding forward-only transitions.
type engineState struct {
	v atomic.Int32
}

func (s *engineState) load() State { return State(s.v.Load()) }

// cas attempts to move from `from` to `to`; returns whether it succeeded.
func (s *engineState) cas(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
