package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func clientMessage(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestNewMessage(t *testing.T) {
	code := 0
	payload := TerminalExitedPayload{
		SessionID: "test-id",
		ExitCode:  &code,
	}

	msg, err := NewMessage(TypeTerminalExited, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != TypeTerminalExited {
		t.Errorf("expected type %s, got %s", TypeTerminalExited, msg.Type)
	}

	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p TerminalExitedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.SessionID != "test-id" {
		t.Errorf("expected ID 'test-id', got %s", p.SessionID)
	}
	if p.ExitCode == nil || *p.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", p.ExitCode)
	}
}

func TestNewMessage_UnknownExitCodeIsNull(t *testing.T) {
	msg, err := NewMessage(TypeTerminalExited, TerminalExitedPayload{SessionID: "s"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if string(msg.Payload) != `{"sessionId":"s","exitCode":null}` {
		t.Errorf("unexpected payload %s", msg.Payload)
	}
}

func TestValidateClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{"spawn", clientMessage(t, TypeTerminalSpawn, map[string]interface{}{}), false},
		{"write", clientMessage(t, TypeTerminalWrite, map[string]interface{}{"data": "ls\n"}), false},
		{"write missing data", clientMessage(t, TypeTerminalWrite, map[string]interface{}{}), true},
		{"write wrong type", clientMessage(t, TypeTerminalWrite, map[string]interface{}{"data": 42}), true},
		{"data request", clientMessage(t, TypeDataRequest, map[string]interface{}{}), false},
		{"data request with repo", clientMessage(t, TypeDataRequest, map[string]interface{}{"repo": "/tmp/repo"}), false},
		{"local request", clientMessage(t, TypeLocalRequest, map[string]interface{}{"name": "settings.json"}), false},
		{"local request missing name", clientMessage(t, TypeLocalRequest, map[string]interface{}{}), true},
		{"unknown type", clientMessage(t, "unknown.action", map[string]interface{}{}), true},
		{"server type from client", clientMessage(t, TypeTerminalOutput, map[string]interface{}{}), true},
		{"missing type", []byte(`{"payload":{}}`), true},
		{"missing payload", []byte(`{"type":"terminal.spawn","timestamp":"2024-01-01T00:00:00.000Z"}`), true},
		{"invalid JSON", []byte("not json"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ValidateClientMessage(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected valid message, got error: %v", err)
			}
			if msg.Type == "" {
				t.Error("expected parsed type")
			}
		})
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrNoActiveSession, "no terminal process running")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrNoActiveSession {
		t.Errorf("expected code %s, got %s", ErrNoActiveSession, p.Code)
	}
}
