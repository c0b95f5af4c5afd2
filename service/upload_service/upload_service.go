package upload_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"

	"resumable-upload/apperr"
	"resumable-upload/database"
	"resumable-upload/model"
	"resumable-upload/notify"
	"resumable-upload/storage"
)

// sessionIDPattern keeps ids safe to embed in file names and ledger keys
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// SessionCache optional read-through cache of COMPLETED sessions
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*model.UploadSession, bool)
	Set(ctx context.Context, session *model.UploadSession)
}

// Options upload limits
type Options struct {
	DefaultChunkSize int64 // Used when a handshake omits chunkSize
	MaxChunkSize     int64
	MaxFileSize      int64
	PeekMaxEntries   int
}

// UploadService session orchestrator: handshake, chunk, status, finalize, reset
type UploadService struct {
	ledger   database.Ledger
	writer   *storage.ChunkWriter
	opts     Options
	notifier notify.Notifier
	cache    SessionCache
	mirror   *MirrorProcessor
}

// NewUploadService create upload service instance
func NewUploadService(ledger database.Ledger, writer *storage.ChunkWriter, opts Options) *UploadService {
	if opts.DefaultChunkSize <= 0 {
		opts.DefaultChunkSize = 5 * 1024 * 1024
	}
	if opts.MaxChunkSize < opts.DefaultChunkSize {
		opts.MaxChunkSize = opts.DefaultChunkSize
	}
	if opts.PeekMaxEntries <= 0 {
		opts.PeekMaxEntries = 100
	}
	return &UploadService{
		ledger:   ledger,
		writer:   writer,
		opts:     opts,
		notifier: notify.NopNotifier{},
	}
}

// SetNotifier sets the completion event publisher
func (s *UploadService) SetNotifier(notifier notify.Notifier) {
	s.notifier = notifier
}

// SetCache sets the completed-session cache
func (s *UploadService) SetCache(cache SessionCache) {
	s.cache = cache
}

// SetMirror sets the background mirror of published files
func (s *UploadService) SetMirror(mirror *MirrorProcessor) {
	s.mirror = mirror
}

// HandshakeRequest handshake request
type HandshakeRequest struct {
	SessionId   string `json:"sessionId" binding:"required"`
	FileName    string `json:"filename" binding:"required"`
	TotalSize   int64  `json:"totalSize" binding:"required"`
	TotalChunks int    `json:"totalChunks" binding:"required"`
	ChunkSize   int64  `json:"chunkSize"` // Optional, server default when 0
}

// HandshakeResponse handshake response
type HandshakeResponse struct {
	SessionId       string `json:"sessionId"`
	Status          string `json:"status"`
	ChunkSize       int64  `json:"chunkSize"`
	TotalChunks     int    `json:"totalChunks"`
	ReceivedIndices []int  `json:"receivedIndices"`
}

// ChunkResponse chunk upload response
type ChunkResponse struct {
	Success bool `json:"success"`
	Index   int  `json:"index"`
}

// StatusResponse status query response
type StatusResponse struct {
	SessionId       string   `json:"sessionId"`
	FileName        string   `json:"filename"`
	Status          string   `json:"status"`
	TotalSize       int64    `json:"totalSize"`
	ChunkSize       int64    `json:"chunkSize"`
	TotalChunks     int      `json:"totalChunks"`
	ReceivedIndices []int    `json:"receivedIndices"`
	FinalHash       string   `json:"finalHash,omitempty"`
	ContentListing  []string `json:"contentListing,omitempty"`
	FailureReason   string   `json:"failureReason,omitempty"`
}

// Handshake creates the session or resumes it, returning the indices already received
func (s *UploadService) Handshake(ctx context.Context, req *HandshakeRequest) (*HandshakeResponse, error) {
	if err := s.validateHandshake(req); err != nil {
		return nil, err
	}

	session, received, err := s.ledger.CreateOrGetSession(ctx, &model.UploadSession{
		SessionId:   req.SessionId,
		FileName:    req.FileName,
		TotalSize:   req.TotalSize,
		ChunkSize:   req.ChunkSize,
		TotalChunks: req.TotalChunks,
	})
	if err != nil {
		if errors.Is(err, database.ErrSessionMismatch) {
			return nil, apperr.Validation("session %s already exists with a different file size", req.SessionId)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	if session.Status == model.SessionStatusUploading {
		if err := s.writer.Open(session); err != nil {
			return nil, err
		}
	}

	log.Printf("Handshake session=%s file=%s size=%d chunks=%d received=%d status=%s",
		session.SessionId, session.FileName, session.TotalSize, session.TotalChunks, len(received), session.Status)

	return &HandshakeResponse{
		SessionId:       session.SessionId,
		Status:          string(session.Status),
		ChunkSize:       session.ChunkSize,
		TotalChunks:     session.TotalChunks,
		ReceivedIndices: received,
	}, nil
}

// validateHandshake fills the default chunk size and checks the file geometry
func (s *UploadService) validateHandshake(req *HandshakeRequest) error {
	if !sessionIDPattern.MatchString(req.SessionId) {
		return apperr.Validation("sessionId must match %s", sessionIDPattern.String())
	}
	if req.FileName == "" || len(req.FileName) > 255 {
		return apperr.Validation("filename must be 1-255 bytes")
	}
	if req.TotalSize <= 0 {
		return apperr.Validation("totalSize must be positive")
	}
	if s.opts.MaxFileSize > 0 && req.TotalSize > s.opts.MaxFileSize {
		return apperr.Validation("totalSize %d exceeds limit %d", req.TotalSize, s.opts.MaxFileSize)
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = s.opts.DefaultChunkSize
	}
	if req.ChunkSize < 0 || req.ChunkSize > s.opts.MaxChunkSize {
		return apperr.Validation("chunkSize must be in (0, %d]", s.opts.MaxChunkSize)
	}
	if err := model.ValidateGeometry(req.TotalSize, req.ChunkSize, req.TotalChunks); err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}

// UploadChunk writes one chunk and records its receipt. Repeating a chunk is a safe no-op.
func (s *UploadService) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) (*ChunkResponse, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	expected, err := session.ChunkLength(index)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if int64(len(data)) != expected {
		return nil, apperr.Validation("chunk %d has %d bytes, expected %d", index, len(data), expected)
	}

	// Only UPLOADING sessions can have pending chunks; everything else already holds every index
	if session.Status != model.SessionStatusUploading {
		return &ChunkResponse{Success: true, Index: index}, nil
	}

	if err := s.writer.WriteChunk(session, index, data); err != nil {
		log.Printf("Failed to write chunk session=%s index=%d: %v", sessionID, index, err)
		return nil, err
	}

	transitioned, err := s.ledger.MarkChunkReceived(ctx, sessionID, index)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound(sessionID)
		}
		return nil, fmt.Errorf("mark chunk received: %w", err)
	}
	if !transitioned {
		log.Printf("Duplicate chunk session=%s index=%d", sessionID, index)
	}

	return &ChunkResponse{Success: true, Index: index}, nil
}

// Status reports the session state and received indices
func (s *UploadService) Status(ctx context.Context, sessionID string) (*StatusResponse, error) {
	if s.cache != nil && sessionIDPattern.MatchString(sessionID) {
		// A completed session holds every chunk, so the ledger has nothing to add
		if cached, ok := s.cache.Get(ctx, sessionID); ok && cached.Status == model.SessionStatusCompleted {
			received := make([]int, cached.TotalChunks)
			for i := range received {
				received[i] = i
			}
			return statusResponse(cached, received), nil
		}
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	received, err := s.ledger.ReceivedIndices(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list received chunks: %w", err)
	}
	return statusResponse(session, received), nil
}

func statusResponse(session *model.UploadSession, received []int) *StatusResponse {
	resp := &StatusResponse{
		SessionId:       session.SessionId,
		FileName:        session.FileName,
		Status:          string(session.Status),
		TotalSize:       session.TotalSize,
		ChunkSize:       session.ChunkSize,
		TotalChunks:     session.TotalChunks,
		ReceivedIndices: received,
		FailureReason:   session.FailureReason,
	}
	if session.Status == model.SessionStatusCompleted {
		resp.FinalHash = session.FinalHash
		resp.ContentListing = nonNil(session.ContentListing)
	}
	return resp
}

// Reset moves a FAILED session back to UPLOADING so it can be finalized again
func (s *UploadService) Reset(ctx context.Context, sessionID string) (*StatusResponse, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusFailed {
		return nil, apperr.Conflict("session %s is %s, only FAILED sessions can be reset", sessionID, session.Status)
	}
	if err := s.writer.Restore(session); err != nil {
		return nil, err
	}

	ok, err := s.ledger.TransitionStatus(ctx, sessionID, model.SessionStatusFailed, model.SessionStatusUploading)
	if err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}
	if !ok {
		return nil, apperr.Conflict("session %s changed state during reset", sessionID)
	}
	log.Printf("Session reset session=%s", sessionID)
	return s.Status(ctx, sessionID)
}

// getSession loads a session, mapping ledger misses to NotFound
func (s *UploadService) getSession(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, apperr.Validation("invalid sessionId")
	}
	session, err := s.ledger.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound(sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// Ping checks the ledger
func (s *UploadService) Ping(ctx context.Context) error {
	return s.ledger.Ping(ctx)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// Options returns the effective upload limits
func (s *UploadService) Options() Options {
	return s.opts
}
