package upload_service

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"resumable-upload/model"
	"resumable-upload/storage"
)

// MirrorProcessor copies published files to the configured storage backend in the background.
// Mirror failures are logged and never change session status.
type MirrorProcessor struct {
	storage  storage.Storage
	queue    chan *model.UploadSession
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	workers  int
	timeout  time.Duration
}

// NewMirrorProcessor create mirror processor
func NewMirrorProcessor(backend storage.Storage, workers, queueSize int) *MirrorProcessor {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &MirrorProcessor{
		storage:  backend,
		queue:    make(chan *model.UploadSession, queueSize),
		stopChan: make(chan struct{}),
		workers:  workers,
		timeout:  30 * time.Minute,
	}
}

// Start start mirror workers
func (mp *MirrorProcessor) Start() {
	log.Printf("Mirror processor started (workers=%d)", mp.workers)
	for i := 0; i < mp.workers; i++ {
		mp.wg.Add(1)
		go mp.run()
	}
}

// Stop stops accepting work and waits for in-flight copies
func (mp *MirrorProcessor) Stop() {
	mp.stopOnce.Do(func() {
		log.Println("Stopping mirror processor...")
		close(mp.stopChan)
	})
	mp.wg.Wait()
	log.Println("Mirror processor stopped")
}

// Enqueue schedules a completed session for mirroring. Returns false when the queue is full.
func (mp *MirrorProcessor) Enqueue(session *model.UploadSession) bool {
	select {
	case mp.queue <- session:
		return true
	default:
		log.Printf("Mirror queue full, skipping session %s", session.SessionId)
		return false
	}
}

func (mp *MirrorProcessor) run() {
	defer mp.wg.Done()
	for {
		select {
		case <-mp.stopChan:
			return
		case session := <-mp.queue:
			if err := mp.mirror(session); err != nil {
				log.Printf("Failed to mirror session %s: %v", session.SessionId, err)
			}
		}
	}
}

func (mp *MirrorProcessor) mirror(session *model.UploadSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), mp.timeout)
	defer cancel()

	key := storage.MirrorKey(session.SessionId, session.FileName)
	exists, err := mp.storage.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Mirror already holds %s", key)
		return nil
	}

	f, err := os.Open(session.PublishedPath)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	if err := mp.storage.Save(ctx, key, f, session.TotalSize); err != nil {
		// A half-written object would pass the Exists check on the next attempt
		if delErr := mp.storage.Delete(ctx, key); delErr != nil {
			log.Printf("Failed to remove partial mirror object %s: %v", key, delErr)
		}
		return err
	}
	log.Printf("Mirrored session %s to %s (%d bytes, cost=%s)", session.SessionId, key, session.TotalSize, time.Since(start))
	return nil
}
