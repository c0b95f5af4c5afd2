package uploadclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"resumable-upload/apperr"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrCancelled returned by Run after Cancel
var ErrCancelled = errors.New("upload cancelled")

// State scheduler lifecycle state
type State string

const (
	StateIdle        State = "idle"
	StateHandshaking State = "handshaking"
	StateUploading   State = "uploading"
	StatePaused      State = "paused"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Progress point-in-time view of an upload
type Progress struct {
	SessionID       string
	State           State
	TotalChunks     int
	CompletedChunks int
	InFlight        int
	FailedChunks    int
	BytesDone       int64
	TotalBytes      int64
	Speed           float64 // Bytes per second over the trailing window
	ETA             time.Duration
}

// Result outcome of a completed upload
type Result struct {
	SessionID      string
	Hash           string
	ContentListing []string
	Duration       time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSnapshotStore enables local resume snapshots
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithLogger overrides the default logger
func WithLogger(logger log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler uploads one file. A supervisor goroutine owns all chunk state; a fixed pool
// of workers receives indices over a channel and reports results back by message.
type Scheduler struct {
	cfg       Config
	transport Transport
	file      io.ReaderAt
	info      FileInfo
	store     SnapshotStore
	logger    log.Logger
	meter     *SpeedMeter

	// Owned by the goroutine running Run
	sessionID string
	chunkSize int64
	states    []ChunkState

	paused    atomic.Bool
	cancelled atomic.Bool
	wake      chan struct{}
	progress  atomic.Pointer[Progress]

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

type chunkResult struct {
	index    int
	attempts int
	bytes    int64
	err      error
}

// NewScheduler create scheduler for the file described by info and readable through file
func NewScheduler(cfg Config, transport Transport, file io.ReaderAt, info FileInfo, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if info.Size <= 0 {
		return nil, apperr.Validation("file %s is empty", info.Name)
	}
	s := &Scheduler{
		cfg:       cfg,
		transport: transport,
		file:      file,
		info:      info,
		logger:    log.NewLogger(),
		meter:     NewSpeedMeter(cfg.SpeedWindow),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.progress.Store(&Progress{State: StateIdle, TotalBytes: info.Size})
	return s, nil
}

// Pause stops dispatching new chunks. In-flight chunks run to completion.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.notify()
}

// Resume restarts dispatching after Pause
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.notify()
}

// Cancel aborts in-flight requests and discards the local snapshot
func (s *Scheduler) Cancel() {
	s.cancelled.Store(true)
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()
}

// Progress returns the latest progress published by the supervisor
func (s *Scheduler) Progress() Progress {
	return *s.progress.Load()
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run handshakes, uploads every missing chunk and finalizes. It blocks until the upload
// completes, fails or is cancelled.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
	if s.cancelled.Load() {
		cancel()
	}

	sessionID, err := SessionID(s.info)
	if err != nil {
		return nil, err
	}
	s.sessionID = sessionID

	chunkSize := s.cfg.ChunkSize
	snapshot := s.loadSnapshot()
	if snapshot.resumable(s.info) {
		// Keep the geometry of the interrupted run so the handshake resumes it, and report
		// its progress until the server answers
		chunkSize = snapshot.ChunkSize
		s.chunkSize = chunkSize
		s.states = snapshot.restoredStates()
	} else {
		snapshot = nil
	}
	s.publish(StateHandshaking, 0)

	state, err := s.transport.Handshake(runCtx, HandshakeRequest{
		SessionID:   sessionID,
		FileName:    s.info.Name,
		TotalSize:   s.info.Size,
		TotalChunks: totalChunks(s.info.Size, chunkSize),
		ChunkSize:   chunkSize,
	})
	if err != nil {
		return nil, s.finish(fmt.Errorf("handshake: %w", err))
	}

	s.chunkSize = chunkSize
	if state.ChunkSize > 0 {
		s.chunkSize = state.ChunkSize
	}
	total := state.TotalChunks
	if total <= 0 {
		total = totalChunks(s.info.Size, s.chunkSize)
	}
	// Server-reported receipt overrides anything the snapshot claimed
	s.states = newChunkStates(total, state.ReceivedIndices)
	if snapshot != nil && snapshot.ChunkSize == s.chunkSize {
		carryHistory(s.states, snapshot.Chunks)
	}
	s.logger.Infof("Session %s: %d/%d chunks already on server (status %s)",
		sessionID, len(state.ReceivedIndices), total, state.Status)

	switch state.Status {
	case "FAILED":
		return nil, s.finish(apperr.IO(errors.New(state.FailureReason), "session %s failed on the server, reset it to retry", sessionID))
	case "COMPLETED", "PROCESSING":
		for i := range s.states {
			s.states[i].Status = ChunkSuccess
		}
	}

	reconciled := false
	for {
		if err := s.dispatch(runCtx); err != nil {
			return nil, s.finish(err)
		}

		final, err := s.finalize(runCtx)
		if apperr.Is(err, apperr.CategoryIncomplete) && !reconciled {
			// The server lost track of chunks we saw succeed; send them again once
			reconciled = true
			s.logger.Warnf("Finalize reported %d pending chunks, reconciling", apperr.PendingCountOf(err))
			status, statusErr := s.transport.Status(runCtx, sessionID)
			if statusErr != nil {
				return nil, s.finish(fmt.Errorf("reconcile: %w", statusErr))
			}
			s.states = newChunkStates(total, status.ReceivedIndices)
			continue
		}
		if err != nil {
			return nil, s.finish(fmt.Errorf("finalize: %w", err))
		}

		s.deleteSnapshot()
		s.publish(StateCompleted, 0)
		return &Result{
			SessionID:      sessionID,
			Hash:           final.Hash,
			ContentListing: final.ContentListing,
			Duration:       time.Since(start),
		}, nil
	}
}

// dispatch uploads every pending chunk with at most MaxConcurrency in flight
func (s *Scheduler) dispatch(ctx context.Context) error {
	queue := indicesWithStatus(s.states, ChunkPending)
	queue = append(queue, indicesWithStatus(s.states, ChunkError)...)
	if len(queue) == 0 {
		return nil
	}
	for _, idx := range queue {
		s.states[idx].Status = ChunkPending
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	jobs := make(chan int)
	results := make(chan chunkResult)
	workers := s.cfg.MaxConcurrency
	if workers > len(queue) {
		workers = len(queue)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				results <- s.uploadWithRetry(workerCtx, index)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	inFlight := 0
	var failure error
	for {
		if inFlight == 0 && (failure != nil || len(queue) == 0) {
			break
		}

		var sendCh chan<- int
		next := -1
		if failure == nil && !s.paused.Load() && len(queue) > 0 {
			sendCh = jobs
			next = queue[0]
		}
		s.publish(StateUploading, inFlight)

		select {
		case sendCh <- next:
			queue = queue[1:]
			s.states[next].Status = ChunkUploading
			s.states[next].StartedAt = time.Now()
			inFlight++
		case r := <-results:
			inFlight--
			st := &s.states[r.index]
			st.Attempts += r.attempts
			st.FinishedAt = time.Now()
			if r.err == nil {
				st.Status = ChunkSuccess
				st.LastError = ""
				s.meter.Add(r.bytes)
				continue
			}
			st.Status = ChunkError
			st.LastError = r.err.Error()
			if failure == nil {
				// One exhausted chunk fails the whole session
				failure = fmt.Errorf("chunk %d failed after %d attempts: %w", r.index, st.Attempts, r.err)
				cancelWorkers()
			}
		case <-s.wake:
		case <-ticker.C:
			s.saveSnapshot()
		case <-ctxDone:
			ctxDone = nil
			if failure == nil {
				failure = ctx.Err()
			}
			cancelWorkers()
		}
	}

	s.publish(StateUploading, 0)
	s.saveSnapshot()
	return failure
}

// uploadWithRetry runs one chunk's retry loop. Non-retryable errors return at once.
func (s *Scheduler) uploadWithRetry(ctx context.Context, index int) chunkResult {
	data, err := s.readChunk(index)
	if err != nil {
		return chunkResult{index: index, err: fmt.Errorf("read chunk %d: %w", index, err)}
	}

	maxAttempts := s.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return chunkResult{index: index, attempts: attempt - 1, err: ctx.Err()}
		}

		err := s.transport.UploadChunk(ctx, s.sessionID, index, data)
		if err == nil {
			return chunkResult{index: index, attempts: attempt, bytes: int64(len(data))}
		}
		lastErr = err
		if ctx.Err() != nil {
			return chunkResult{index: index, attempts: attempt, err: ctx.Err()}
		}
		if !apperr.Retryable(err) || attempt == maxAttempts {
			return chunkResult{index: index, attempts: attempt, err: err}
		}

		delay := backoffDelay(attempt, s.cfg.BaseBackoff, s.cfg.MaxBackoff)
		s.logger.Warnf("Chunk %d attempt %d/%d failed: %v, retrying in %s", index, attempt, maxAttempts, err, delay.Round(time.Millisecond))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return chunkResult{index: index, attempts: attempt, err: ctx.Err()}
		case <-timer.C:
		}
	}
	return chunkResult{index: index, attempts: maxAttempts, err: lastErr}
}

// finalize asks the server to finalize; on Conflict it polls until the other caller finishes
func (s *Scheduler) finalize(ctx context.Context) (*SessionState, error) {
	s.publish(StateFinalizing, 0)
	for {
		state, err := s.transport.Finalize(ctx, s.sessionID)
		if err == nil {
			return state, nil
		}
		if !apperr.Is(err, apperr.CategoryConflict) {
			return nil, err
		}

		s.logger.Infof("Session %s is being finalized elsewhere, waiting", s.sessionID)
		state, done, err := s.awaitTerminal(ctx)
		if done || err != nil {
			return state, err
		}
	}
}

// awaitTerminal polls status until the session leaves PROCESSING. done is false when the
// session fell back to UPLOADING and finalize should be retried.
func (s *Scheduler) awaitTerminal(ctx context.Context) (*SessionState, bool, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case <-ticker.C:
		}

		state, err := s.transport.Status(ctx, s.sessionID)
		if err != nil {
			if apperr.Retryable(err) {
				continue
			}
			return nil, true, err
		}
		switch state.Status {
		case "COMPLETED":
			return state, true, nil
		case "FAILED":
			return nil, true, apperr.IO(errors.New(state.FailureReason), "session %s failed on the server", s.sessionID)
		case "UPLOADING":
			return nil, false, nil
		}
	}
}

// finish maps a terminal error onto the snapshot and progress state
func (s *Scheduler) finish(err error) error {
	if s.cancelled.Load() {
		s.deleteSnapshot()
		s.publish(StateCancelled, 0)
		return ErrCancelled
	}
	s.saveSnapshot()
	s.publish(StateFailed, 0)
	return err
}

func (s *Scheduler) chunkLength(index int) int64 {
	offset := int64(index) * s.chunkSize
	if remaining := s.info.Size - offset; remaining < s.chunkSize {
		return remaining
	}
	return s.chunkSize
}

func (s *Scheduler) readChunk(index int) ([]byte, error) {
	buf := make([]byte, s.chunkLength(index))
	n, err := s.file.ReadAt(buf, int64(index)*s.chunkSize)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// publish stores a fresh Progress; called only from the supervisor
func (s *Scheduler) publish(state State, inFlight int) {
	p := &Progress{
		SessionID:   s.sessionID,
		State:       state,
		TotalChunks: len(s.states),
		InFlight:    inFlight,
		TotalBytes:  s.info.Size,
		Speed:       s.meter.Speed(),
	}
	if state == StateUploading && s.paused.Load() {
		p.State = StatePaused
	}
	for _, st := range s.states {
		switch st.Status {
		case ChunkSuccess:
			p.CompletedChunks++
			p.BytesDone += s.chunkLength(st.Index)
		case ChunkError:
			p.FailedChunks++
		}
	}
	p.ETA = s.meter.ETA(p.TotalBytes - p.BytesDone)
	s.progress.Store(p)
}

func (s *Scheduler) loadSnapshot() *Snapshot {
	if s.store == nil {
		return nil
	}
	snapshot, err := s.store.Load(s.sessionID)
	if err != nil {
		s.logger.Warnf("Ignoring unreadable snapshot for %s: %v", s.sessionID, err)
		return nil
	}
	if snapshot != nil {
		s.logger.Infof("Found local snapshot for %s with %d/%d chunks done",
			s.sessionID, countStatus(snapshot.Chunks, ChunkSuccess), snapshot.TotalChunks)
	}
	return snapshot
}

func (s *Scheduler) saveSnapshot() {
	if s.store == nil || s.states == nil {
		return
	}
	chunks := make([]ChunkState, len(s.states))
	copy(chunks, s.states)
	err := s.store.Save(&Snapshot{
		SessionID:   s.sessionID,
		FileName:    s.info.Name,
		TotalSize:   s.info.Size,
		ChunkSize:   s.chunkSize,
		TotalChunks: len(s.states),
		Chunks:      chunks,
		SavedAt:     time.Now(),
	})
	if err != nil {
		s.logger.Warnf("Failed to save snapshot for %s: %v", s.sessionID, err)
	}
}

func (s *Scheduler) deleteSnapshot() {
	if s.store == nil || s.sessionID == "" {
		return
	}
	if err := s.store.Delete(s.sessionID); err != nil {
		s.logger.Warnf("Failed to delete snapshot for %s: %v", s.sessionID, err)
	}
}

func totalChunks(size, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}
