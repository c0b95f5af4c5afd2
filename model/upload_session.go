package model

import (
	"fmt"
	"time"
)

// SessionStatus upload session status
type SessionStatus string

const (
	SessionStatusUploading  SessionStatus = "UPLOADING"  // Accepting chunks
	SessionStatusProcessing SessionStatus = "PROCESSING" // Finalize in flight
	SessionStatusCompleted  SessionStatus = "COMPLETED"  // Hashed, inspected and published
	SessionStatusFailed     SessionStatus = "FAILED"     // Finalize failed, temp file kept
)

// sessionTransitions lists every legal status move. FAILED→UPLOADING is the manual reset path.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusUploading:  {SessionStatusProcessing},
	SessionStatusProcessing: {SessionStatusCompleted, SessionStatusFailed},
	SessionStatusFailed:     {SessionStatusUploading},
}

// Valid reports whether s is one of the known session statuses
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusUploading, SessionStatusProcessing, SessionStatusCompleted, SessionStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected without operator action
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// CanTransition reports whether from→to is in the transition table
func CanTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SweepableStatuses statuses the orphan sweep may reclaim
var SweepableStatuses = []SessionStatus{
	SessionStatusUploading,
	SessionStatusProcessing,
	SessionStatusFailed,
}

// UploadSession one resumable transfer of a single source file
type UploadSession struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"-"`

	SessionId   string `gorm:"uniqueIndex;type:varchar(128)" json:"sessionId"` // Client-derived deterministic id
	FileName    string `gorm:"type:varchar(255)" json:"filename"`
	TotalSize   int64  `json:"totalSize"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`

	Status SessionStatus `gorm:"type:varchar(20);index;default:'UPLOADING'" json:"status"`

	// Set only at COMPLETED
	FinalHash      string   `gorm:"type:varchar(64)" json:"finalHash,omitempty"`
	ContentListing []string `gorm:"serializer:json;type:text" json:"contentListing,omitempty"`
	PublishedPath  string   `gorm:"type:varchar(1024)" json:"publishedPath,omitempty"`

	// Set only at FAILED
	FailureReason string `gorm:"type:text" json:"failureReason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updatedAt"`
}

// TableName sets custom table name
func (UploadSession) TableName() string {
	return "tb_upload_session"
}

// ComputeTotalChunks number of chunks needed to cover totalSize
func ComputeTotalChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ValidateGeometry checks totalSize = (totalChunks-1)*chunkSize + last, 0 < last <= chunkSize
func ValidateGeometry(totalSize, chunkSize int64, totalChunks int) error {
	if totalSize <= 0 {
		return fmt.Errorf("totalSize must be positive, got %d", totalSize)
	}
	if chunkSize <= 0 {
		return fmt.Errorf("chunkSize must be positive, got %d", chunkSize)
	}
	if want := ComputeTotalChunks(totalSize, chunkSize); totalChunks != want {
		return fmt.Errorf("totalChunks %d does not match totalSize %d / chunkSize %d (want %d)",
			totalChunks, totalSize, chunkSize, want)
	}
	return nil
}

// ChunkOffset byte offset of chunk index
func (s *UploadSession) ChunkOffset(index int) int64 {
	return int64(index) * s.ChunkSize
}

// ChunkLength expected byte length of chunk index: ChunkSize for every index but the last,
// which carries the remainder
func (s *UploadSession) ChunkLength(index int) (int64, error) {
	if index < 0 || index >= s.TotalChunks {
		return 0, fmt.Errorf("chunk index %d out of range [0,%d)", index, s.TotalChunks)
	}
	if index < s.TotalChunks-1 {
		return s.ChunkSize, nil
	}
	return s.TotalSize - s.ChunkOffset(index), nil
}

// SameFile reports whether other describes the same file. The chunk layout may differ: an
// existing session keeps the layout it was created with.
func (s *UploadSession) SameFile(other *UploadSession) bool {
	return s.TotalSize == other.TotalSize
}
