package models

import (
	"context"
	"errors"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduled = "scheduled"
	SyncTriggeredRetry     = "retry"
)

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	Status        string     `gorm:"size:20;not null;index" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	Full          *bool      `gorm:"not null;default:false" json:"full"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	RemoteId    string    `gorm:"size:64" json:"remote_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SyncCursor is the per-resource-type incremental fetch marker. It is only
// written after a resource type's pass completes without a fatal error, so a
// failed pass re-fetches from the previous marker.
type SyncCursor struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	EntityType string    `gorm:"size:50;uniqueIndex;not null" json:"entity_type"`
	Cursor     string    `gorm:"size:128" json:"cursor"`
	SyncedAt   time.Time `json:"synced_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSyncCursor(ctx context.Context, entityType string) (*SyncCursor, error) {
	var cursor SyncCursor
	err := config.GetDB().WithContext(ctx).Where("entity_type = ?", entityType).Take(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func SaveSyncCursor(ctx context.Context, entityType string, value string) error {
	db := config.GetDB().WithContext(ctx)
	now := time.Now()

	res := db.Model(&SyncCursor{}).
		Where("entity_type = ?", entityType).
		Updates(map[string]interface{}{"cursor": value, "synced_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.Create(&SyncCursor{EntityType: entityType, Cursor: value, SyncedAt: now}).Error
}

func GetSyncRunById(ctx context.Context, id uint) (*SyncRun, error) {
	var run SyncRun
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := config.GetDB().WithContext(ctx).Order("id desc").Limit(limit).Find(&runs).Error
	return runs, err
}

func ListSyncErrors(ctx context.Context, runId uint) ([]SyncError, error) {
	var errs []SyncError
	err := config.GetDB().WithContext(ctx).Where("sync_run_id = ?", runId).Order("id desc").Find(&errs).Error
	return errs, err
}

func CreateSyncError(ctx context.Context, db *gorm.DB, runId uint, entityType string, remoteId string, code string, message string, payload []byte, retryable bool) error {
	errRec := SyncError{
		SyncRunId:   runId,
		EntityType:  entityType,
		RemoteId:    remoteId,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}
