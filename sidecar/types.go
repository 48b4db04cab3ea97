package sidecar

import "fmt"

// EventKind identifies what an Event carries.
type EventKind int

const (
	// EventStdout carries one line of the child's standard output, without the trailing newline.
	EventStdout EventKind = iota
	// EventStderr carries one line of the child's standard error.
	EventStderr
	// EventError carries an I/O or wait error. The stream continues after it.
	EventError
	// EventTerminated is the final event, carrying the exit code.
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventError:
		return "error"
	case EventTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind EventKind

	// Line is set for EventStdout and EventStderr.
	Line string
	// Err is set for EventError.
	Err error
	// ExitCode is set for EventTerminated. It is -1 if the process was killed by a signal.
	ExitCode int
}

type StartProcRequest struct {
	Command string
	Args    []string
	// Env holds KEY=VALUE overrides appended to the parent environment.
	Env []string
	WD  string
}

type Result struct {
	ExitCode int
	TimeMS   int64
}

// Trame sidecar invocation.
const (
	TrameCommand = "trame"
)

var (
	// TrameArgs ask the sidecar to run in server mode on an OS-assigned port, exiting 10s after the last client leaves.
	TrameArgs = []string{"--server", "--port", "0", "--timeout", "10"}
	// TrameEnv disables Python's output buffering so sentinel lines arrive as soon as they are printed.
	TrameEnv = []string{"PYTHONUNBUFFERED=1"}
)

// TrameRequest builds the start request for the trame sidecar at the given path.
func TrameRequest(path string) StartProcRequest {
	return StartProcRequest{
		Command: path,
		Args:    append([]string(nil), TrameArgs...),
		Env:     append([]string(nil), TrameEnv...),
	}
}
