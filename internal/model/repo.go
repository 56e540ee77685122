package model

import (
	"context"
	"time"

	"songforge/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// CreateSongIfAbsent 以 task_id 幂等插入，已存在时不重复写入。
	// 返回值表示本次调用是否真正插入了新行。
	CreateSongIfAbsent(ctx context.Context, song *entity.DbSong) (bool, error)

	GetSongByTaskID(ctx context.Context, taskID string) (*entity.DbSong, error)
	UpdateSong(ctx context.Context, taskID string, updates entity.SongUpdates) error

	// CompleteSong 单条件更新：仅当记录尚未 completed 时写入两类链接并终结状态。
	// 返回 false 表示已有一次对账先行完成，本次为无操作。
	CompleteSong(ctx context.Context, taskID, sunoURL, durableURL string) (bool, error)

	// MarkSongFailed 记录失败原因并累加 retry_count，不触碰已 completed 的行。
	MarkSongFailed(ctx context.Context, taskID, errMsg string) error

	// IncrementRetry 对账失败时的重试计数
	IncrementRetry(ctx context.Context, taskID string) error

	ListSongs(ctx context.Context, params *entity.SongQuery) ([]entity.DbSong, *entity.Meta, error)

	// ListStaleProcessing 返回停留在 pending/processing 超过给定时长的歌曲，供后台补偿任务使用。
	ListStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]entity.DbSong, error)
}
