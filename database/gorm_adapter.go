package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"resumable-upload/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormLedger SQL ledger implementation (MySQL, SQLite)
type GormLedger struct {
	db *gorm.DB
}

// GormConfig SQL ledger configuration
type GormConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     logger.LogLevel // 0 = Warn
}

// chunkInsertBatch rows per INSERT when creating chunk records
const chunkInsertBatch = 500

// NewGormLedger create SQL ledger instance and migrate its tables
func NewGormLedger(dbType DBType, config interface{}) (*GormLedger, error) {
	cfg, ok := config.(*GormConfig)
	if !ok {
		return nil, fmt.Errorf("invalid %s config type", dbType)
	}

	var dialector gorm.Dialector
	switch dbType {
	case DBTypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DBTypeSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, ErrUnsupportedDBType
	}

	level := cfg.LogLevel
	if level == 0 {
		level = logger.Warn
	}

	// Connect database
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", dbType, err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Set connection pool. SQLite allows a single writer.
	if dbType == DBTypeSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&model.UploadSession{}, &model.ChunkRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
	}

	log.Printf("%s ledger connected successfully", dbType)

	return &GormLedger{db: db}, nil
}

// Session operations

func (g *GormLedger) CreateOrGetSession(ctx context.Context, session *model.UploadSession) (*model.UploadSession, []int, error) {
	var current model.UploadSession
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := *session
		row.ID = 0
		row.Status = model.SessionStatusUploading
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			records := model.NewChunkRecords(session.SessionId, session.TotalChunks)
			if err := tx.CreateInBatches(records, chunkInsertBatch).Error; err != nil {
				return err
			}
		}
		return tx.Where("session_id = ?", session.SessionId).First(&current).Error
	})
	if err != nil {
		return nil, nil, err
	}
	if !current.SameFile(session) {
		return nil, nil, ErrSessionMismatch
	}

	received, err := g.ReceivedIndices(ctx, session.SessionId)
	if err != nil {
		return nil, nil, err
	}
	return &current, received, nil
}

func (g *GormLedger) GetSession(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	var session model.UploadSession
	err := g.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (g *GormLedger) TransitionStatus(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error) {
	if err := checkTransition(from, to); err != nil {
		return false, err
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to == model.SessionStatusUploading {
		updates["failure_reason"] = ""
	}
	res := g.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("session_id = ? AND status = ?", sessionID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	return false, g.ensureSession(ctx, sessionID)
}

func (g *GormLedger) CompleteSession(ctx context.Context, sessionID, hash string, listing []string, publishedPath string) error {
	if listing == nil {
		listing = []string{}
	}
	res := g.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("session_id = ? AND status = ?", sessionID, model.SessionStatusProcessing).
		Select("Status", "FinalHash", "ContentListing", "PublishedPath", "UpdatedAt").
		Updates(&model.UploadSession{
			Status:         model.SessionStatusCompleted,
			FinalHash:      hash,
			ContentListing: listing,
			PublishedPath:  publishedPath,
			UpdatedAt:      time.Now(),
		})
	return g.checkCAS(ctx, sessionID, res)
}

func (g *GormLedger) FailSession(ctx context.Context, sessionID, reason string) error {
	res := g.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("session_id = ? AND status = ?", sessionID, model.SessionStatusProcessing).
		Updates(map[string]interface{}{
			"status":         model.SessionStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	return g.checkCAS(ctx, sessionID, res)
}

func (g *GormLedger) DeleteSession(ctx context.Context, sessionID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ? AND status <> ?", sessionID, model.SessionStatusCompleted).
			Delete(&model.UploadSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var session model.UploadSession
			err := tx.Where("session_id = ?", sessionID).First(&session).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			return ErrSessionCompleted
		}
		return tx.Where("session_id = ?", sessionID).Delete(&model.ChunkRecord{}).Error
	})
}

// Chunk operations

func (g *GormLedger) MarkChunkReceived(ctx context.Context, sessionID string, index int) (bool, error) {
	now := time.Now()
	transitioned := false
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ChunkRecord{}).
			Where("session_id = ? AND chunk_index = ? AND status = ?", sessionID, index, model.ChunkStatusPending).
			Updates(map[string]interface{}{
				"status":      model.ChunkStatusReceived,
				"received_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.ChunkRecord{}).
				Where("session_id = ? AND chunk_index = ?", sessionID, index).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return nil
		}
		transitioned = true
		return tx.Model(&model.UploadSession{}).
			Where("session_id = ?", sessionID).
			Update("updated_at", now).Error
	})
	return transitioned, err
}

func (g *GormLedger) ReceivedIndices(ctx context.Context, sessionID string) ([]int, error) {
	indices := []int{}
	err := g.db.WithContext(ctx).Model(&model.ChunkRecord{}).
		Where("session_id = ? AND status = ?", sessionID, model.ChunkStatusReceived).
		Order("chunk_index ASC").
		Pluck("chunk_index", &indices).Error
	return indices, err
}

func (g *GormLedger) CountPending(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.ChunkRecord{}).
		Where("session_id = ? AND status = ?", sessionID, model.ChunkStatusPending).
		Count(&count).Error
	return int(count), err
}

// Sweep support

func (g *GormLedger) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.UploadSession, error) {
	var sessions []*model.UploadSession
	query := g.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", model.SweepableStatuses, before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

func (g *GormLedger) ListSessionIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := g.db.WithContext(ctx).Model(&model.UploadSession{}).Pluck("session_id", &ids).Error
	return ids, err
}

// General operations

func (g *GormLedger) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormLedger) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// checkCAS maps a conditional update that touched no rows to ErrNotFound or ErrStatusMismatch
func (g *GormLedger) checkCAS(ctx context.Context, sessionID string, res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := g.ensureSession(ctx, sessionID); err != nil {
		return err
	}
	return ErrStatusMismatch
}

func (g *GormLedger) ensureSession(ctx context.Context, sessionID string) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
