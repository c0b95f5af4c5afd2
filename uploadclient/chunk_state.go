package uploadclient

import "time"

// ChunkStatus client-side view of one chunk
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkUploading ChunkStatus = "uploading"
	ChunkSuccess   ChunkStatus = "success"
	ChunkError     ChunkStatus = "error"
)

// ChunkState per-index state owned by the scheduler's supervisor
type ChunkState struct {
	Index     int         `json:"index"`
	Status    ChunkStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"lastError,omitempty"`

	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// newChunkStates seeds every index as pending, then marks the given indices as success
func newChunkStates(total int, received []int) []ChunkState {
	states := make([]ChunkState, total)
	for i := range states {
		states[i] = ChunkState{Index: i, Status: ChunkPending}
	}
	for _, idx := range received {
		if idx >= 0 && idx < total {
			states[idx].Status = ChunkSuccess
		}
	}
	return states
}

func countStatus(states []ChunkState, status ChunkStatus) int {
	n := 0
	for _, s := range states {
		if s.Status == status {
			n++
		}
	}
	return n
}

func indicesWithStatus(states []ChunkState, status ChunkStatus) []int {
	var out []int
	for _, s := range states {
		if s.Status == status {
			out = append(out, s.Index)
		}
	}
	return out
}
