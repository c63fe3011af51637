package session

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned by Write when no shell has been started.
var ErrNoActiveSession = errors.New("no terminal process running")

// SpawnError reports that the located program could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError reports a failed write to the shell's stdin, typically because
// the process has already exited.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
