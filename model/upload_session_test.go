package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionStatusUploading, SessionStatusProcessing, true},
		{SessionStatusProcessing, SessionStatusCompleted, true},
		{SessionStatusProcessing, SessionStatusFailed, true},
		{SessionStatusFailed, SessionStatusUploading, true},
		{SessionStatusUploading, SessionStatusCompleted, false},
		{SessionStatusCompleted, SessionStatusUploading, false},
		{SessionStatusCompleted, SessionStatusFailed, false},
		{SessionStatusProcessing, SessionStatusUploading, false},
		{SessionStatusFailed, SessionStatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestChunkGeometry(t *testing.T) {
	const (
		totalSize = int64(12_582_912)
		chunkSize = int64(5_242_880)
	)
	totalChunks := ComputeTotalChunks(totalSize, chunkSize)
	require.Equal(t, 3, totalChunks)
	require.NoError(t, ValidateGeometry(totalSize, chunkSize, totalChunks))

	s := &UploadSession{TotalSize: totalSize, ChunkSize: chunkSize, TotalChunks: totalChunks}
	for i, want := range []int64{5_242_880, 5_242_880, 2_097_152} {
		got, err := s.ChunkLength(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "index %d", i)
	}
	assert.Equal(t, int64(10_485_760), s.ChunkOffset(2))

	_, err := s.ChunkLength(3)
	assert.Error(t, err)
	_, err = s.ChunkLength(-1)
	assert.Error(t, err)
}

func TestValidateGeometryRejects(t *testing.T) {
	assert.Error(t, ValidateGeometry(0, 10, 0))
	assert.Error(t, ValidateGeometry(10, 0, 1))
	assert.Error(t, ValidateGeometry(100, 10, 11))
	assert.NoError(t, ValidateGeometry(100, 10, 10))
	assert.NoError(t, ValidateGeometry(101, 10, 11))
}

func TestNewChunkRecords(t *testing.T) {
	records := NewChunkRecords("s1", 4)
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, i, r.ChunkIndex)
		assert.Equal(t, ChunkStatusPending, r.Status)
		assert.Nil(t, r.ReceivedAt)
	}
}
