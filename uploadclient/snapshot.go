package uploadclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot local copy of a session's progress. The server's view always wins over it.
type Snapshot struct {
	SessionID   string       `json:"sessionId"`
	FileName    string       `json:"filename"`
	TotalSize   int64        `json:"totalSize"`
	ChunkSize   int64        `json:"chunkSize"`
	TotalChunks int          `json:"totalChunks"`
	Chunks      []ChunkState `json:"chunks"`
	SavedAt     time.Time    `json:"savedAt"`
}

// resumable reports whether the snapshot was taken for a file of this size with a usable layout
func (s *Snapshot) resumable(info FileInfo) bool {
	return s != nil && s.TotalSize == info.Size && s.ChunkSize > 0 &&
		s.TotalChunks == totalChunks(s.TotalSize, s.ChunkSize) && len(s.Chunks) == s.TotalChunks
}

// restoredStates returns a copy of the chunk states with interrupted uploads back to pending
func (s *Snapshot) restoredStates() []ChunkState {
	states := make([]ChunkState, len(s.Chunks))
	copy(states, s.Chunks)
	for i := range states {
		states[i].Index = i
		if states[i].Status == ChunkUploading {
			states[i].Status = ChunkPending
		}
	}
	return states
}

// carryHistory copies attempt history from an earlier run onto server-seeded states.
// Status is left as the server reported it.
func carryHistory(states, previous []ChunkState) {
	if len(states) != len(previous) {
		return
	}
	for i := range states {
		states[i].Attempts = previous[i].Attempts
		states[i].StartedAt = previous[i].StartedAt
		states[i].FinishedAt = previous[i].FinishedAt
		if states[i].Status != ChunkSuccess {
			states[i].LastError = previous[i].LastError
		}
	}
}

// SnapshotStore persists snapshots keyed by session id. Load returns nil, nil when none exists.
type SnapshotStore interface {
	Load(sessionID string) (*Snapshot, error)
	Save(snapshot *Snapshot) error
	Delete(sessionID string) error
}

// FileSnapshotStore keeps one JSON file per session in a directory.
type FileSnapshotStore struct {
	dir string
}

// NewFileSnapshotStore create snapshot store rooted at dir
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{dir: dir}, nil
}

func (s *FileSnapshotStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *FileSnapshotStore) Load(sessionID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &snapshot, nil
}

// Save writes through a temp file and rename so a crash never leaves a torn snapshot
func (s *FileSnapshotStore) Save(snapshot *Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path(snapshot.SessionID))
}

func (s *FileSnapshotStore) Delete(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
