package upload_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"resumable-upload/database"
	"resumable-upload/storage"
)

// SweepLock cross-instance mutual exclusion for the sweep
type SweepLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// CleanupStaleSessions deletes sessions idle since before, record first then files, and
// removes temp files and publish directories the ledger no longer knows about. COMPLETED
// sessions are never touched.
func (s *UploadService) CleanupStaleSessions(ctx context.Context, before time.Time, batchSize int) (int, error) {
	stale, err := s.ledger.ListStale(ctx, before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	cleaned := 0
	for _, session := range stale {
		if err := s.ledger.DeleteSession(ctx, session.SessionId); err != nil {
			if errors.Is(err, database.ErrSessionCompleted) || errors.Is(err, database.ErrNotFound) {
				continue
			}
			log.Printf("Failed to delete stale session %s: %v", session.SessionId, err)
			continue
		}
		if err := s.writer.Remove(session.SessionId); err != nil {
			log.Printf("Failed to remove temp file for session %s: %v", session.SessionId, err)
		}
		if err := s.writer.RemovePublished(session.SessionId); err != nil {
			log.Printf("Failed to remove published file for session %s: %v", session.SessionId, err)
		}
		log.Printf("Swept stale session %s (status=%s, updated=%s)",
			session.SessionId, session.Status, session.UpdatedAt.Format(time.RFC3339))
		cleaned++
	}

	orphans, err := s.cleanupOrphanFiles(ctx, before)
	if err != nil {
		return cleaned, err
	}
	return cleaned + orphans, nil
}

// cleanupOrphanFiles removes aged temp files and publish directories with no ledger record.
// Disk is listed before the ledger so a session created in between is always known.
func (s *UploadService) cleanupOrphanFiles(ctx context.Context, before time.Time) (int, error) {
	temps, err := s.writer.ListTempFiles()
	if err != nil {
		return 0, fmt.Errorf("list temp files: %w", err)
	}
	published, err := s.writer.ListPublishedDirs()
	if err != nil {
		return 0, fmt.Errorf("list published files: %w", err)
	}
	if len(temps) == 0 && len(published) == 0 {
		return 0, nil
	}

	ids, err := s.ledger.ListSessionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list session ids: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	orphan := func(file storage.TempFile) bool {
		_, ok := known[file.SessionID]
		return !ok && file.ModTime.Before(before)
	}

	removed := 0
	for _, file := range temps {
		if !orphan(file) {
			continue
		}
		if err := s.writer.Remove(file.SessionID); err != nil {
			log.Printf("Failed to remove orphan temp file %s: %v", file.SessionID, err)
			continue
		}
		log.Printf("Removed orphan temp file for session %s", file.SessionID)
		removed++
	}
	for _, dir := range published {
		if !orphan(dir) {
			continue
		}
		if err := s.writer.RemovePublished(dir.SessionID); err != nil {
			log.Printf("Failed to remove orphan published file %s: %v", dir.SessionID, err)
			continue
		}
		log.Printf("Removed orphan published file for session %s", dir.SessionID)
		removed++
	}
	return removed, nil
}

// CleanupProcessor periodic stale-session sweep. Runs never overlap.
type CleanupProcessor struct {
	uploadService *UploadService
	lock          SweepLock
	stopChan      chan struct{}
	stopOnce      sync.Once
	running       atomic.Bool
	interval      time.Duration
	batchSize     int
	maxAge        time.Duration // Sessions idle longer than this are swept
}

// NewCleanupProcessor create cleanup processor
func NewCleanupProcessor(uploadService *UploadService, interval, maxAge time.Duration, batchSize int) *CleanupProcessor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CleanupProcessor{
		uploadService: uploadService,
		stopChan:      make(chan struct{}),
		interval:      interval,
		batchSize:     batchSize,
		maxAge:        maxAge,
	}
}

// SetLock shares the sweep across instances
func (cp *CleanupProcessor) SetLock(lock SweepLock) {
	cp.lock = lock
}

// Start start cleanup processor
func (cp *CleanupProcessor) Start() {
	log.Printf("Cleanup processor started (interval=%s, maxAge=%s)", cp.interval, cp.maxAge)
	go cp.run()
}

// Stop stop cleanup processor
func (cp *CleanupProcessor) Stop() {
	cp.stopOnce.Do(func() {
		log.Println("Stopping cleanup processor...")
		close(cp.stopChan)
	})
}

func (cp *CleanupProcessor) run() {
	ticker := time.NewTicker(cp.interval)
	defer ticker.Stop()

	// Run once immediately on start
	cp.RunOnce(context.Background())

	for {
		select {
		case <-cp.stopChan:
			log.Println("Cleanup processor stopped")
			return
		case <-ticker.C:
			cp.RunOnce(context.Background())
		}
	}
}

// RunOnce performs one sweep. It returns false without sweeping when another sweep holds
// the in-process guard or the shared lock.
func (cp *CleanupProcessor) RunOnce(ctx context.Context) bool {
	if !cp.running.CompareAndSwap(false, true) {
		return false
	}
	defer cp.running.Store(false)

	if cp.lock != nil {
		acquired, err := cp.lock.TryAcquire(ctx)
		if err != nil {
			log.Printf("Failed to acquire sweep lock: %v", err)
			return false
		}
		if !acquired {
			return false
		}
		defer func() {
			if err := cp.lock.Release(ctx); err != nil {
				log.Printf("Failed to release sweep lock: %v", err)
			}
		}()
	}

	before := time.Now().Add(-cp.maxAge)
	cleaned, err := cp.uploadService.CleanupStaleSessions(ctx, before, cp.batchSize)
	if err != nil {
		log.Printf("Failed to cleanup stale sessions: %v", err)
	}
	if cleaned > 0 {
		log.Printf("Cleaned up %d stale sessions", cleaned)
	}
	return true
}
