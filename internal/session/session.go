package session

import (
	"os/exec"
	"time"
)

// State represents the lifecycle state of a terminal session.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
)

// Stream identifies which output channel of the subprocess produced a chunk.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Session is one lifetime of a launched shell, from spawn to exit.
type Session struct {
	ID        string
	Program   string
	Args      []string
	PID       int
	State     State
	StartedAt time.Time

	cmd   *exec.Cmd
	stdin *stdinWriter
	done  chan struct{}
}

// Info is a copy of a session's metadata that is safe to hand out.
type Info struct {
	ID        string    `json:"id"`
	Program   string    `json:"program"`
	Args      []string  `json:"args,omitempty"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

func (s *Session) info() Info {
	return Info{
		ID:        s.ID,
		Program:   s.Program,
		Args:      append([]string(nil), s.Args...),
		PID:       s.PID,
		State:     s.State,
		StartedAt: s.StartedAt,
	}
}

// Status is the outcome of a Start call that did not fail.
type Status struct {
	Message        string `json:"message"`
	AlreadyRunning bool   `json:"alreadyRunning"`
	Session        Info   `json:"session"`
}

// Chunk is decoded text read from one output channel. Chunks are not aligned to lines.
type Chunk struct {
	SessionID string    `json:"sessionId"`
	Stream    Stream    `json:"stream"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Exit describes how a session ended. Code is nil when no exit status could be obtained.
type Exit struct {
	SessionID string `json:"sessionId"`
	Code      *int   `json:"exitCode"`
}

// Sink receives push notifications from a running session. Output is called
// from the pump goroutines, once per read, in order within a stream; Ended is
// called once per session after the registry has released it.
type Sink interface {
	Output(chunk Chunk)
	Ended(exit Exit)
}
