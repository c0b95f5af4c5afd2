package model

import "time"

// ChunkStatus chunk receipt status
type ChunkStatus string

const (
	ChunkStatusPending  ChunkStatus = "PENDING"
	ChunkStatusReceived ChunkStatus = "RECEIVED"
)

// ChunkRecord receipt state of one chunk index. Monotonic PENDING→RECEIVED.
type ChunkRecord struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"-"`

	SessionId  string      `gorm:"type:varchar(128);uniqueIndex:idx_session_chunk" json:"sessionId"`
	ChunkIndex int         `gorm:"uniqueIndex:idx_session_chunk" json:"index"`
	Status     ChunkStatus `gorm:"type:varchar(20);default:'PENDING'" json:"status"`
	ReceivedAt *time.Time  `json:"receivedAt,omitempty"`
}

// TableName sets custom table name
func (ChunkRecord) TableName() string {
	return "tb_upload_chunk"
}

// NewChunkRecords builds the PENDING records created alongside a session
func NewChunkRecords(sessionID string, totalChunks int) []*ChunkRecord {
	records := make([]*ChunkRecord, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		records = append(records, &ChunkRecord{
			SessionId:  sessionID,
			ChunkIndex: i,
			Status:     ChunkStatusPending,
		})
	}
	return records
}
