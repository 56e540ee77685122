package service

import (
	"context"
	"errors"
	"time"

	"songforge/internal/config"
	"songforge/internal/model"
	"songforge/internal/suno"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const sweepBatchSize = 50

// Sweeper 后台补偿任务：服务商的回调可能丢失，客户端也可能不再轮询，
// 定期对停留在 pending/processing 的歌曲重新走一遍轮询对账。
type Sweeper struct {
	cfg        config.Config
	repo       model.Repository
	reconciler *Reconciler
	cron       *cron.Cron
}

// NewSweeper 创建补偿任务
func NewSweeper(cfg config.Config, repo model.Repository, reconciler *Reconciler) *Sweeper {
	return &Sweeper{
		cfg:        cfg,
		repo:       repo,
		reconciler: reconciler,
		cron:       cron.New(),
	}
}

// Start 注册并启动定时任务
func (s *Sweeper) Start() error {
	schedule := s.cfg.SweepSchedule
	if schedule == "" {
		schedule = "@every 2m"
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	logrus.WithField("schedule", schedule).Info("reconciliation sweep started")
	return nil
}

// Stop 停止定时任务，等待进行中的一轮结束
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	staleAfter := time.Duration(s.cfg.SweepStaleAfter) * time.Second
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}

	songs, err := s.repo.ListStaleProcessing(ctx, staleAfter, sweepBatchSize)
	if err != nil {
		logrus.WithError(err).Error("sweep: failed to list stale songs")
		return
	}
	if len(songs) == 0 {
		return
	}

	logrus.WithField("count", len(songs)).Info("sweep: reconciling stale songs")

	maxRetries := s.cfg.SweepMaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}

	for _, song := range songs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		view, err := s.reconciler.ResolveSong(ctx, song.TaskID)
		switch {
		case err == nil:
			if view.Ready {
				continue
			}
			// 仍在渲染，留给下一轮
		case errors.Is(err, suno.ErrTaskNotFound):
			// 服务商侧已经查不到该任务，继续等也不会有结果
			logrus.WithField("task_id", song.TaskID).Warn("sweep: task unknown to provider, marking failed")
			if err := s.repo.MarkSongFailed(ctx, song.TaskID, "task not found at provider"); err != nil {
				logrus.WithError(err).WithField("task_id", song.TaskID).Error("sweep: failed to mark song failed")
			}
		default:
			logrus.WithError(err).WithField("task_id", song.TaskID).Warn("sweep: reconciliation attempt failed")
			if err := s.repo.IncrementRetry(ctx, song.TaskID); err != nil {
				logrus.WithError(err).WithField("task_id", song.TaskID).Error("sweep: failed to bump retry count")
				continue
			}
			if song.RetryCount+1 >= maxRetries {
				if err := s.repo.MarkSongFailed(ctx, song.TaskID, "exceeded reconciliation retries"); err != nil {
					logrus.WithError(err).WithField("task_id", song.TaskID).Error("sweep: failed to mark song failed")
				}
			}
		}
	}
}
