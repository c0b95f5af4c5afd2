package database

import (
	"context"
	"time"

	"resumable-upload/model"
)

// Ledger durable record of upload sessions and per-chunk receipt state
type Ledger interface {
	// Session operations
	CreateOrGetSession(ctx context.Context, session *model.UploadSession) (*model.UploadSession, []int, error)
	GetSession(ctx context.Context, sessionID string) (*model.UploadSession, error)
	TransitionStatus(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error)
	CompleteSession(ctx context.Context, sessionID, hash string, listing []string, publishedPath string) error
	FailSession(ctx context.Context, sessionID, reason string) error
	DeleteSession(ctx context.Context, sessionID string) error

	// Chunk operations
	MarkChunkReceived(ctx context.Context, sessionID string, index int) (bool, error)
	ReceivedIndices(ctx context.Context, sessionID string) ([]int, error)
	CountPending(ctx context.Context, sessionID string) (int, error)

	// Sweep support
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.UploadSession, error)
	ListSessionIDs(ctx context.Context) ([]string, error)

	// General operations
	Ping(ctx context.Context) error
	Close() error
}

// DBType database type
type DBType string

const (
	DBTypeMySQL  DBType = "mysql"
	DBTypeSQLite DBType = "sqlite"
	DBTypePebble DBType = "pebble"
)

// Global ledger instance
var DB Ledger

// currentDBType stores the current database type
var currentDBType DBType

// InitDatabase initialize the ledger with specified type
func InitDatabase(dbType DBType, config interface{}) error {
	switch dbType {
	case DBTypeMySQL, DBTypeSQLite:
		ledger, err := NewGormLedger(dbType, config)
		if err != nil {
			return err
		}
		DB = ledger
	case DBTypePebble:
		ledger, err := NewPebbleLedger(config)
		if err != nil {
			return err
		}
		DB = ledger
	default:
		return ErrUnsupportedDBType
	}

	currentDBType = dbType
	return nil
}

// GetDBType get current database type
func GetDBType() DBType {
	return currentDBType
}

// checkTransition rejects moves missing from the transition table
func checkTransition(from, to model.SessionStatus) error {
	if !model.CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
