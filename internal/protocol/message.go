package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeTerminalStatus = "terminal.status"
	TypeTerminalOutput = "terminal.output"
	TypeTerminalExited = "terminal.exited"
	TypeDataCompany    = "data.company"
	TypeDataChanged    = "data.changed"
	TypeLocalJSON      = "local.json"
	TypeError          = "error"
)

// Client → Server message types.
const (
	TypeTerminalSpawn = "terminal.spawn"
	TypeTerminalWrite = "terminal.write"
	TypeDataRequest   = "data.request"
	TypeLocalRequest  = "local.request"
)

// Error codes.
const (
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrSpawnFailed     = "SPAWN_FAILED"
	ErrNoActiveSession = "NO_ACTIVE_SESSION"
	ErrWriteFailed     = "WRITE_FAILED"
	ErrDataLoadFailed  = "DATA_LOAD_FAILED"
	ErrNotFound        = "NOT_FOUND"
)

// Server → Client payloads.

type TerminalStatusPayload struct {
	Message        string `json:"message"`
	AlreadyRunning bool   `json:"alreadyRunning"`
	SessionID      string `json:"sessionId,omitempty"`
	Program        string `json:"program,omitempty"`
	PID            int    `json:"pid,omitempty"`
	State          string `json:"state,omitempty"`
}

type TerminalOutputPayload struct {
	SessionID string `json:"sessionId"`
	Stream    string `json:"stream"` // "stdout" | "stderr"
	Data      string `json:"data"`
}

type TerminalExitedPayload struct {
	SessionID string `json:"sessionId"`
	ExitCode  *int   `json:"exitCode"`
}

type DataCompanyPayload struct {
	Repo string          `json:"repo"`
	Data json.RawMessage `json:"data"`
}

type DataChangedPayload struct {
	Repo  string   `json:"repo"`
	Paths []string `json:"paths"`
}

type LocalJSONPayload struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type TerminalSpawnPayload struct{}

type TerminalWritePayload struct {
	Data string `json:"data"`
}

type DataRequestPayload struct {
	Repo string `json:"repo,omitempty"`
}

type LocalRequestPayload struct {
	Name string `json:"name"`
}
