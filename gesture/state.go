package gesture

import "fmt"

// State is the coordinator lifecycle state.
//
//	Stopped ──Start──▶ Starting ──ok──▶ Running ──Stop──▶ Stopping ──▶ Stopped
//	                       └──fail──────────────────────────────────────┘
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
