package upload_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"resumable-upload/apperr"
	"resumable-upload/model"
	"resumable-upload/notify"
	"resumable-upload/pipeline"
)

// maxFinalizeAttempts bounds the read-check-CAS loop when another caller keeps winning the race
const maxFinalizeAttempts = 5

// FinalizeResponse finalize response
type FinalizeResponse struct {
	SessionId      string   `json:"sessionId"`
	Status         string   `json:"status"`
	Hash           string   `json:"hash"`
	ContentListing []string `json:"contentListing"`
}

// Finalize hashes, inspects and publishes a fully received file. Exactly one caller runs the
// pipeline; the rest see Conflict while it runs and the cached result afterwards.
func (s *UploadService) Finalize(ctx context.Context, sessionID string) (*FinalizeResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, sessionID); ok {
			return completedResponse(cached), nil
		}
	}

	for attempt := 0; attempt < maxFinalizeAttempts; attempt++ {
		session, err := s.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		switch session.Status {
		case model.SessionStatusCompleted:
			if s.cache != nil {
				s.cache.Set(ctx, session)
			}
			return completedResponse(session), nil
		case model.SessionStatusProcessing:
			return nil, apperr.Conflict("session %s is already being finalized", sessionID)
		case model.SessionStatusFailed:
			return nil, apperr.IO(errors.New(session.FailureReason), "session %s failed, reset it before finalizing again", sessionID)
		}

		pending, err := s.ledger.CountPending(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("count pending chunks: %w", err)
		}
		if pending > 0 {
			return nil, apperr.Incomplete(pending)
		}

		won, err := s.ledger.TransitionStatus(ctx, sessionID, model.SessionStatusUploading, model.SessionStatusProcessing)
		if err != nil {
			return nil, fmt.Errorf("claim finalize: %w", err)
		}
		if !won {
			continue
		}

		session.Status = model.SessionStatusProcessing
		// The pipeline must not be torn down by a client that disconnects mid-hash
		return s.runFinalize(context.WithoutCancel(ctx), session)
	}

	return nil, apperr.Conflict("session %s is contended, retry finalize", sessionID)
}

// runFinalize runs on the single caller that won UPLOADING->PROCESSING
func (s *UploadService) runFinalize(ctx context.Context, session *model.UploadSession) (*FinalizeResponse, error) {
	start := time.Now()
	tempPath := s.writer.TempPath(session.SessionId)

	hash, err := pipeline.Hash(ctx, tempPath)
	if err != nil {
		return nil, s.failFinalize(ctx, session, fmt.Errorf("hash: %w", err))
	}

	listing := pipeline.Inspect(tempPath, s.opts.PeekMaxEntries)

	publishedPath, err := s.writer.Publish(session)
	if err != nil {
		return nil, s.failFinalize(ctx, session, err)
	}

	if err := s.ledger.CompleteSession(ctx, session.SessionId, hash, listing.Entries, publishedPath); err != nil {
		// Not COMPLETED, so the data goes back where a reset or the sweep expects it
		if restoreErr := s.writer.Restore(session); restoreErr != nil {
			log.Printf("Failed to restore temp file session=%s: %v", session.SessionId, restoreErr)
		}
		return nil, s.failFinalize(ctx, session, fmt.Errorf("record completion: %w", err))
	}

	session.Status = model.SessionStatusCompleted
	session.FinalHash = hash
	session.ContentListing = listing.Entries
	session.PublishedPath = publishedPath

	log.Printf("Session completed session=%s hash=%s format=%q entries=%d cost=%s",
		session.SessionId, hash, listing.Format, len(listing.Entries), time.Since(start))

	if s.cache != nil {
		s.cache.Set(ctx, session)
	}
	s.publishEvent(ctx, notify.Event{
		Topic:     notify.TopicCompleted,
		SessionId: session.SessionId,
		FileName:  session.FileName,
		TotalSize: session.TotalSize,
		Hash:      hash,
		Entries:   listing.Entries,
	})
	if s.mirror != nil {
		s.mirror.Enqueue(session)
	}

	return completedResponse(session), nil
}

// failFinalize records the failure and returns it as an IO error. Source data stays in place.
func (s *UploadService) failFinalize(ctx context.Context, session *model.UploadSession, cause error) error {
	log.Printf("Finalize failed session=%s: %v", session.SessionId, cause)

	if err := s.ledger.FailSession(ctx, session.SessionId, cause.Error()); err != nil {
		log.Printf("Failed to mark session failed session=%s: %v", session.SessionId, err)
	}
	s.publishEvent(ctx, notify.Event{
		Topic:     notify.TopicFailed,
		SessionId: session.SessionId,
		FileName:  session.FileName,
		TotalSize: session.TotalSize,
		Reason:    cause.Error(),
	})

	if apperr.Is(cause, apperr.CategoryIO) {
		return cause
	}
	return apperr.IO(cause, "finalize session %s", session.SessionId)
}

func (s *UploadService) publishEvent(ctx context.Context, event notify.Event) {
	event.Time = time.Now()
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("Failed to publish %s event session=%s: %v", event.Topic, event.SessionId, err)
	}
}

func completedResponse(session *model.UploadSession) *FinalizeResponse {
	return &FinalizeResponse{
		SessionId:      session.SessionId,
		Status:         string(model.SessionStatusCompleted),
		Hash:           session.FinalHash,
		ContentListing: nonNil(session.ContentListing),
	}
}
