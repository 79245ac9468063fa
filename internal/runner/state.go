package runner

import "github.com/musher-dev/cmdq/internal/queue"

// IdleCommand is reported as the running command between tasks.
const IdleCommand = "Idle"

// Phase is the runner's position in a task's lifecycle.
type Phase int

const (
	// PhaseIdle waits for the next task.
	PhaseIdle Phase = iota
	// PhaseLaunching builds the command and starts the process.
	PhaseLaunching
	// PhaseRunning waits for the process to exit while pumps read its output.
	PhaseRunning
	// PhaseDraining waits for the pumps to flush after exit.
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunching:
		return "launching"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Dashboard is a point-in-time view of the runner and its queue.
type Dashboard struct {
	Running   string
	Phase     Phase
	Pending   []queue.Task
	Capacity  int
	Completed int
	Failed    int
}

// Idle reports whether no task is executing.
func (d Dashboard) Idle() bool {
	return d.Phase == PhaseIdle
}
