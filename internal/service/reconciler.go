package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"songforge/internal/config"
	"songforge/internal/entity"
	"songforge/internal/model"
	"songforge/internal/storage"
	"songforge/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	uploadAttempts = 3
	uploadBackoff  = 2 * time.Second

	webhookTimeout = 5 * time.Second
)

// Reconciler 负责把服务商的临时音频链接转存为永久链接并终结歌曲记录。
// 两个入口：客户端轮询（ResolveSong）与服务商回调（HandleCallback）。
type Reconciler struct {
	cfg        config.Config
	repo       model.Repository
	music      MusicClient
	storage    storage.Storage
	httpClient *http.Client
}

// NewReconciler 创建状态对账器
func NewReconciler(cfg config.Config, repo model.Repository, music MusicClient, store storage.Storage) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		repo:       repo,
		music:      music,
		storage:    store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SongStatusView 轮询接口的响应视图。AudioURL 只暴露永久链接。
type SongStatusView struct {
	Status   string
	TaskID   string
	AudioURL string
	Lyrics   string
	Ready    bool
}

// ResolveSong 查询服务商状态，必要时顺手完成转存。
// 转存失败不向调用方报错，记录保持原样，下一次轮询会重试。
func (r *Reconciler) ResolveSong(ctx context.Context, taskID string) (*SongStatusView, error) {
	info, err := r.music.RecordInfo(ctx, taskID)
	if err != nil {
		return nil, err
	}

	song, err := r.repo.GetSongByTaskID(ctx, info.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{TaskID: info.TaskID}
		}
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	if info.AudioURL != "" && song.CloudinaryURL == "" {
		durableURL, err := r.mirrorAudio(ctx, song, info.AudioURL)
		if err != nil {
			logrus.WithError(err).WithField("task_id", info.TaskID).Warn("mirror failed, will retry on next poll")
			if retryErr := r.repo.IncrementRetry(ctx, info.TaskID); retryErr != nil {
				logrus.WithError(retryErr).WithField("task_id", info.TaskID).Error("failed to bump retry count")
			}
		} else {
			won, err := r.repo.CompleteSong(ctx, info.TaskID, info.AudioURL, durableURL)
			if err != nil {
				logrus.WithError(err).WithField("task_id", info.TaskID).Error("failed to finalise song record")
			} else if won {
				logrus.WithFields(logrus.Fields{
					"task_id":     info.TaskID,
					"durable_url": durableURL,
				}).Info("song completed via poll")
				song.SunoURL = info.AudioURL
				song.CloudinaryURL = durableURL
				song.AudioURL = durableURL
				song.Status = entity.SongStatusCompleted
			} else {
				// 另一次对账抢先完成，重新读取以拿到已写入的链接
				if refreshed, err := r.repo.GetSongByTaskID(ctx, info.TaskID); err == nil {
					song = refreshed
				}
			}
		}
	}

	return &SongStatusView{
		Status:   string(song.Status),
		TaskID:   info.TaskID,
		AudioURL: song.CloudinaryURL,
		Lyrics:   song.Lyrics,
		Ready:    song.CloudinaryURL != "",
	}, nil
}

// HandleCallback 处理服务商的渲染完成回调。与轮询路径不同，
// 这里的每一步失败都会明确返回给调用方。
func (r *Reconciler) HandleCallback(ctx context.Context, taskID, audioURL string) (string, error) {
	if strings.TrimSpace(taskID) == "" || strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("task_id and audio_url are required")
	}

	song, err := r.repo.GetSongByTaskID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &NotFoundError{TaskID: taskID}
		}
		return "", &PersistenceError{Op: "load", Err: err}
	}

	logrus.WithField("task_id", taskID).Info("received provider callback")

	// 转存前先落一份临时链接，后续下载或上传失败时排查有据可查
	if !song.IsCompleted() && song.SunoURL != audioURL {
		if err := r.repo.UpdateSong(ctx, taskID, entity.SongUpdates{SunoURL: &audioURL}); err != nil {
			logrus.WithError(err).WithField("task_id", taskID).Warn("failed to record transient audio url")
		}
	}

	data, ext, err := r.downloadAudio(ctx, audioURL)
	if err != nil {
		return "", &TransferError{Op: "download", Err: err}
	}
	logrus.WithFields(logrus.Fields{
		"task_id": taskID,
		"bytes":   len(data),
	}).Info("downloaded audio from provider")

	key, err := r.uploadWithRetry(ctx, data, safePublicID(song.Title, taskID), ext)
	if err != nil {
		return "", &TransferError{Op: "upload", Err: err}
	}
	durableURL := storage.PublicURL(r.cfg.StoragePublicBaseURL, key)

	won, err := r.repo.CompleteSong(ctx, taskID, audioURL, durableURL)
	if err != nil {
		return "", &PersistenceError{Op: "update", Err: err}
	}
	if !won {
		// 重复回调：记录早已 completed，两次写入的值相同，按成功处理
		logrus.WithField("task_id", taskID).Info("callback for already completed song")
	}

	r.notifyWebhook(song, taskID, durableURL)

	logrus.WithFields(logrus.Fields{
		"task_id":     taskID,
		"durable_url": durableURL,
	}).Info("song processing completed")

	return durableURL, nil
}

// mirrorAudio 下载临时链接并转存，返回永久链接
func (r *Reconciler) mirrorAudio(ctx context.Context, song *entity.DbSong, audioURL string) (string, error) {
	data, ext, err := r.downloadAudio(ctx, audioURL)
	if err != nil {
		return "", &TransferError{Op: "download", Err: err}
	}

	key, err := r.uploadWithRetry(ctx, data, safePublicID(song.Title, song.TaskID), ext)
	if err != nil {
		return "", &TransferError{Op: "upload", Err: err}
	}

	return storage.PublicURL(r.cfg.StoragePublicBaseURL, key), nil
}

// downloadAudio 拉取音频字节，只尝试一次
func (r *Reconciler) downloadAudio(ctx context.Context, audioURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download audio http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read audio body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty audio body")
	}

	ext := utils.ExtensionFromMime(resp.Header.Get("Content-Type"))
	if ext == "" {
		ext = "mp3"
	}

	return data, ext, nil
}

// uploadWithRetry 对存储上传做固定间隔重试，其余外部调用都只试一次
func (r *Reconciler) uploadWithRetry(ctx context.Context, data []byte, baseName, ext string) (string, error) {
	opts := storage.SaveOptions{
		Category:     "songs",
		Extension:    ext,
		BaseName:     baseName,
		SkipIfExists: true,
	}

	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		key, err := r.storage.Save(ctx, data, opts)
		if err == nil {
			return key, nil
		}
		lastErr = err
		logrus.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"base":    baseName,
		}).Warn("storage upload attempt failed")

		if attempt < uploadAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(uploadBackoff):
			}
		}
	}
	return "", lastErr
}

// notifyWebhook 歌曲完成后的尽力通知，失败只记日志
func (r *Reconciler) notifyWebhook(song *entity.DbSong, taskID, durableURL string) {
	webhookURL := strings.TrimSpace(song.WebhookURL)
	if webhookURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"task_id":   taskID,
		"audio_url": durableURL,
	})
	if err != nil {
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Warn("failed to notify webhook")
		return
	}
	resp.Body.Close()
	logrus.WithField("task_id", taskID).Info("notified webhook")
}

var (
	publicIDPattern   = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// safePublicID 生成存储对象的文件名主体：标题清洗后拼上 task_id，
// 同一任务的重复转存会得到相同的对象键。
func safePublicID(title, taskID string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "songforge_song"
	}
	base = whitespacePattern.ReplaceAllString(base, "_")
	base = publicIDPattern.ReplaceAllString(base, "")
	if len(base) > 120 {
		base = base[:120]
	}
	return fmt.Sprintf("%s_%s", base, taskID)
}
