package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"resumable-upload/model"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleLedger PebbleDB ledger implementation
type PebbleLedger struct {
	db *pebble.DB

	// Striped per-session locks make read-check-write sequences atomic
	locks [64]sync.Mutex
}

// PebbleConfig PebbleDB configuration
type PebbleConfig struct {
	DataDir string
	FS      vfs.FS // Optional, vfs.NewMem() in tests
}

// Key formats
const (
	prefixSession = "s/" // key: s/{session_id}, value: JSON(UploadSession)
	prefixChunk   = "c/" // key: c/{session_id}/{chunk_index:%010d}, value: JSON(ChunkRecord)
)

// NewPebbleLedger create PebbleDB ledger instance
func NewPebbleLedger(config interface{}) (*PebbleLedger, error) {
	cfg, ok := config.(*PebbleConfig)
	if !ok {
		return nil, fmt.Errorf("invalid PebbleDB config type")
	}

	opts := &pebble.Options{}
	path := filepath.Join(cfg.DataDir, "ledger_db")
	if cfg.FS != nil {
		opts.FS = cfg.FS
	} else {
		// Create data directory if not exists
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
		}
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", path, err)
	}

	log.Printf("PebbleDB ledger opened at %s", path)
	return &PebbleLedger{db: db}, nil
}

func sessionKey(sessionID string) []byte {
	return []byte(prefixSession + sessionID)
}

func chunkPrefix(sessionID string) []byte {
	return []byte(prefixChunk + sessionID + "/")
}

func chunkKey(sessionID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", prefixChunk, sessionID, index))
}

// prefixUpperBound smallest key greater than every key carrying prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

func (p *PebbleLedger) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &p.locks[h.Sum32()%uint32(len(p.locks))]
}

func (p *PebbleLedger) getSession(sessionID string) (*model.UploadSession, error) {
	val, closer, err := p.db.Get(sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var session model.UploadSession
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (p *PebbleLedger) putSession(session *model.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return p.db.Set(sessionKey(session.SessionId), data, pebble.Sync)
}

// Session operations

func (p *PebbleLedger) CreateOrGetSession(ctx context.Context, session *model.UploadSession) (*model.UploadSession, []int, error) {
	mu := p.lockFor(session.SessionId)
	mu.Lock()
	defer mu.Unlock()

	current, err := p.getSession(session.SessionId)
	switch {
	case err == nil:
		if !current.SameFile(session) {
			return nil, nil, ErrSessionMismatch
		}
		received, err := p.ReceivedIndices(ctx, session.SessionId)
		if err != nil {
			return nil, nil, err
		}
		return current, received, nil
	case !errors.Is(err, ErrNotFound):
		return nil, nil, err
	}

	now := time.Now()
	row := *session
	row.Status = model.SessionStatusUploading
	row.CreatedAt = now
	row.UpdatedAt = now

	batch := p.db.NewBatch()
	defer batch.Close()

	data, err := json.Marshal(&row)
	if err != nil {
		return nil, nil, err
	}
	if err := batch.Set(sessionKey(row.SessionId), data, nil); err != nil {
		return nil, nil, err
	}
	for _, record := range model.NewChunkRecords(row.SessionId, row.TotalChunks) {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, nil, err
		}
		if err := batch.Set(chunkKey(row.SessionId, record.ChunkIndex), data, nil); err != nil {
			return nil, nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, nil, fmt.Errorf("failed to create session %s: %w", row.SessionId, err)
	}
	return &row, []int{}, nil
}

func (p *PebbleLedger) GetSession(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	return p.getSession(sessionID)
}

func (p *PebbleLedger) TransitionStatus(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error) {
	if err := checkTransition(from, to); err != nil {
		return false, err
	}

	mu := p.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := p.getSession(sessionID)
	if err != nil {
		return false, err
	}
	if session.Status != from {
		return false, nil
	}
	session.Status = to
	session.UpdatedAt = time.Now()
	if to == model.SessionStatusUploading {
		session.FailureReason = ""
	}
	if err := p.putSession(session); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleLedger) CompleteSession(ctx context.Context, sessionID, hash string, listing []string, publishedPath string) error {
	if listing == nil {
		listing = []string{}
	}
	return p.updateProcessing(sessionID, func(session *model.UploadSession) {
		session.Status = model.SessionStatusCompleted
		session.FinalHash = hash
		session.ContentListing = listing
		session.PublishedPath = publishedPath
	})
}

func (p *PebbleLedger) FailSession(ctx context.Context, sessionID, reason string) error {
	return p.updateProcessing(sessionID, func(session *model.UploadSession) {
		session.Status = model.SessionStatusFailed
		session.FailureReason = reason
	})
}

// updateProcessing applies mutate to a PROCESSING session under its lock
func (p *PebbleLedger) updateProcessing(sessionID string, mutate func(*model.UploadSession)) error {
	mu := p.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := p.getSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionStatusProcessing {
		return ErrStatusMismatch
	}
	mutate(session)
	session.UpdatedAt = time.Now()
	return p.putSession(session)
}

func (p *PebbleLedger) DeleteSession(ctx context.Context, sessionID string) error {
	mu := p.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := p.getSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(sessionKey(sessionID), nil); err != nil {
		return err
	}
	prefix := chunkPrefix(sessionID)
	if err := batch.DeleteRange(prefix, prefixUpperBound(prefix), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Chunk operations

func (p *PebbleLedger) MarkChunkReceived(ctx context.Context, sessionID string, index int) (bool, error) {
	mu := p.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	key := chunkKey(sessionID, index)
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	var record model.ChunkRecord
	err = json.Unmarshal(val, &record)
	closer.Close()
	if err != nil {
		return false, fmt.Errorf("failed to decode chunk %s/%d: %w", sessionID, index, err)
	}
	if record.Status == model.ChunkStatusReceived {
		return false, nil
	}

	session, err := p.getSession(sessionID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	record.Status = model.ChunkStatusReceived
	record.ReceivedAt = &now
	session.UpdatedAt = now

	recordData, err := json.Marshal(&record)
	if err != nil {
		return false, err
	}
	sessionData, err := json.Marshal(session)
	if err != nil {
		return false, err
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, recordData, nil); err != nil {
		return false, err
	}
	if err := batch.Set(sessionKey(sessionID), sessionData, nil); err != nil {
		return false, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// scanChunks calls fn for each chunk record of the session in index order
func (p *PebbleLedger) scanChunks(sessionID string, fn func(*model.ChunkRecord)) error {
	prefix := chunkPrefix(sessionID)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record model.ChunkRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			suffix := string(iter.Key()[len(prefix):])
			idx, _ := strconv.Atoi(suffix)
			return fmt.Errorf("failed to decode chunk %s/%d: %w", sessionID, idx, err)
		}
		fn(&record)
	}
	return iter.Error()
}

func (p *PebbleLedger) ReceivedIndices(ctx context.Context, sessionID string) ([]int, error) {
	indices := []int{}
	err := p.scanChunks(sessionID, func(record *model.ChunkRecord) {
		if record.Status == model.ChunkStatusReceived {
			indices = append(indices, record.ChunkIndex)
		}
	})
	return indices, err
}

func (p *PebbleLedger) CountPending(ctx context.Context, sessionID string) (int, error) {
	pending := 0
	err := p.scanChunks(sessionID, func(record *model.ChunkRecord) {
		if record.Status == model.ChunkStatusPending {
			pending++
		}
	})
	return pending, err
}

// Sweep support

// scanSessions calls fn for every stored session
func (p *PebbleLedger) scanSessions(fn func(*model.UploadSession)) error {
	prefix := []byte(prefixSession)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var session model.UploadSession
		if err := json.Unmarshal(iter.Value(), &session); err != nil {
			log.Printf("Skipping undecodable session key %s: %v", iter.Key(), err)
			continue
		}
		fn(&session)
	}
	return iter.Error()
}

func (p *PebbleLedger) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.UploadSession, error) {
	var stale []*model.UploadSession
	err := p.scanSessions(func(session *model.UploadSession) {
		if session.UpdatedAt.Before(before) && isSweepable(session.Status) {
			stale = append(stale, session)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (p *PebbleLedger) ListSessionIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := p.scanSessions(func(session *model.UploadSession) {
		ids = append(ids, session.SessionId)
	})
	return ids, err
}

func isSweepable(status model.SessionStatus) bool {
	for _, s := range model.SweepableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// General operations

func (p *PebbleLedger) Ping(ctx context.Context) error {
	_, closer, err := p.db.Get([]byte(prefixSession))
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (p *PebbleLedger) Close() error {
	return p.db.Close()
}
