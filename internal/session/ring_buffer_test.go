package session

import (
	"fmt"
	"slices"
	"testing"
)

func chunkData(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Data
	}
	return out
}

func TestRingBuffer_Replay(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		writes   int
		want     []string
	}{
		{"empty", 4, 0, []string{}},
		{"partial", 4, 2, []string{"c0", "c1"}},
		{"exactly full", 3, 3, []string{"c0", "c1", "c2"}},
		{"oldest evicted", 3, 5, []string{"c2", "c3", "c4"}},
		{"capacity raised to one", 0, 3, []string{"c2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.capacity)
			for i := 0; i < tt.writes; i++ {
				rb.Write(Chunk{SessionID: "s", Stream: StreamStdout, Data: fmt.Sprintf("c%d", i)})
			}
			if got := chunkData(rb.ReadAll()); !slices.Equal(got, tt.want) {
				t.Errorf("ReadAll() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRingBuffer_ReadAllIsACopy(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Write(Chunk{Data: "prompt$ "})

	replay := rb.ReadAll()
	replay[0].Data = "changed"

	if got := rb.ReadAll()[0].Data; got != "prompt$ " {
		t.Errorf("buffer modified through replay slice: %q", got)
	}
}

func TestRingBuffer_ResetBetweenSessions(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, d := range []string{"a1", "a2", "a3", "a4"} {
		rb.Write(Chunk{SessionID: "a", Data: d})
	}
	rb.Reset()
	if got := rb.ReadAll(); len(got) != 0 {
		t.Fatalf("expected empty buffer after reset, got %v", chunkData(got))
	}

	rb.Write(Chunk{SessionID: "b", Data: "b1"})
	got := rb.ReadAll()
	if len(got) != 1 || got[0].SessionID != "b" {
		t.Errorf("expected only the new session's chunk, got %+v", got)
	}
}
