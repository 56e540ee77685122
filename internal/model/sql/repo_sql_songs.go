package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"songforge/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateSongIfAbsent inserts a song row keyed by task_id. The unique index on
// task_id plus ON CONFLICT DO NOTHING make concurrent creations for the same
// task collapse to a single row.
func (r *GormRepository) CreateSongIfAbsent(ctx context.Context, song *entity.DbSong) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if song == nil {
		return false, fmt.Errorf("song is nil")
	}
	if strings.TrimSpace(song.TaskID) == "" {
		return false, fmt.Errorf("task_id is required")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			DoNothing: true,
		}).
		Create(song)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetSongByTaskID retrieves a single song by its provider task id.
func (r *GormRepository) GetSongByTaskID(ctx context.Context, taskID string) (*entity.DbSong, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task_id is required")
	}

	var song entity.DbSong
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&song).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load song: %w", err)
	}
	return &song, nil
}

// UpdateSong updates a song with the provided fields.
func (r *GormRepository) UpdateSong(ctx context.Context, taskID string, updates entity.SongUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	values := updates.ToMap()
	if len(values) == 0 {
		return fmt.Errorf("no updates provided")
	}
	return r.db.WithContext(ctx).Model(&entity.DbSong{}).Where("task_id = ?", taskID).Updates(values).Error
}

// CompleteSong finalises a song in a single conditional statement. The
// status <> completed guard means the first reconciliation wins and any
// duplicate (concurrent poll, repeated callback) degrades to a no-op.
func (r *GormRepository) CompleteSong(ctx context.Context, taskID, sunoURL, durableURL string) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(taskID) == "" {
		return false, fmt.Errorf("task_id is required")
	}
	if strings.TrimSpace(durableURL) == "" {
		return false, fmt.Errorf("durable url is required")
	}

	result := r.db.WithContext(ctx).
		Model(&entity.DbSong{}).
		Where("task_id = ? AND status <> ?", taskID, string(entity.SongStatusCompleted)).
		Updates(map[string]interface{}{
			"suno_url":       sunoURL,
			"cloudinary_url": durableURL,
			"audio_url":      durableURL,
			"status":         string(entity.SongStatusCompleted),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkSongFailed records a failure without touching rows that already
// completed. Each failure also bumps retry_count.
func (r *GormRepository) MarkSongFailed(ctx context.Context, taskID, errMsg string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task_id is required")
	}

	return r.db.WithContext(ctx).
		Model(&entity.DbSong{}).
		Where("task_id = ? AND status <> ?", taskID, string(entity.SongStatusCompleted)).
		Updates(map[string]interface{}{
			"status":        string(entity.SongStatusFailed),
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + ?", 1),
		}).Error
}

// IncrementRetry bumps the reconciliation retry counter.
func (r *GormRepository) IncrementRetry(ctx context.Context, taskID string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task_id is required")
	}

	return r.db.WithContext(ctx).
		Model(&entity.DbSong{}).
		Where("task_id = ?", taskID).
		UpdateColumn("retry_count", gorm.Expr("retry_count + ?", 1)).Error
}

// ListSongs retrieves paginated songs, newest first.
func (r *GormRepository) ListSongs(ctx context.Context, params *entity.SongQuery) ([]entity.DbSong, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbSong{})
	if params != nil {
		if trimmed := strings.ToLower(strings.TrimSpace(params.Status)); trimmed != "" && trimmed != "all" {
			query = query.Where("status = ?", trimmed)
		}
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	page := 1
	pageSize := 20
	if params != nil {
		if params.Page > 0 {
			page = int(params.Page)
		}
		if params.PageSize > 0 {
			pageSize = int(params.PageSize)
		}
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	var songs []entity.DbSong
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&songs).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return songs, meta, nil
}

// ListStaleProcessing returns songs that have been sitting in pending or
// processing for longer than olderThan, oldest first.
func (r *GormRepository) ListStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]entity.DbSong, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}

	cutoff := time.Now().Add(-olderThan)

	var songs []entity.DbSong
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(entity.SongStatusPending), string(entity.SongStatusProcessing)}).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&songs).Error
	if err != nil {
		return nil, err
	}
	return songs, nil
}
