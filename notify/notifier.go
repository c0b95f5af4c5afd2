package notify

import (
	"context"
	"time"
)

// Event topics
const (
	TopicCompleted = "upload.completed"
	TopicFailed    = "upload.failed"
)

// Event session lifecycle notification
type Event struct {
	Topic     string    `json:"topic"`
	SessionId string    `json:"sessionId"`
	FileName  string    `json:"filename"`
	TotalSize int64     `json:"totalSize"`
	Hash      string    `json:"hash,omitempty"`
	Entries   []string  `json:"contentListing,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier publishes session lifecycle events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// NopNotifier discards events
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
func (NopNotifier) Close() error                        { return nil }
