package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPollTimeout 轮询在达到最大次数后仍未拿到音频
var ErrPollTimeout = errors.New("polling exceeded maximum attempts")

// PollConfig 客户端轮询配置
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollConfig 默认每 5 秒一次、最多 12 次，对应一分钟的等待窗口。
var DefaultPollConfig = PollConfig{
	Interval:    5 * time.Second,
	MaxAttempts: 12,
}

// WaitForAudio 以固定间隔轮询本服务的状态接口，直到拿到永久音频链接、
// 超出最大次数或 ctx 取消。这是给客户端与测试挂具用的参考实现，
// 服务端自身不依赖它。
func WaitForAudio(ctx context.Context, baseURL, taskID string, config PollConfig) (string, error) {
	if strings.TrimSpace(taskID) == "" {
		return "", errors.New("task id is required")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollConfig.Interval
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollConfig.MaxAttempts
	}

	statusURL := fmt.Sprintf("%s/check_status/%s", strings.TrimRight(baseURL, "/"), taskID)
	client := &http.Client{Timeout: 10 * time.Second}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-ticker.C:
			attempts++

			audioURL, err := fetchAudioURL(ctx, client, statusURL)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"task_id": taskID,
					"attempt": attempts,
				}).Warn("poll attempt failed")
			} else if audioURL != "" {
				logrus.WithFields(logrus.Fields{
					"task_id":   taskID,
					"audio_url": audioURL,
				}).Info("song ready")
				return audioURL, nil
			}

			if attempts >= maxAttempts {
				logrus.WithFields(logrus.Fields{
					"task_id":  taskID,
					"attempts": attempts,
				}).Warn("song not ready after max attempts")
				return "", ErrPollTimeout
			}
		}
	}
}

func fetchAudioURL(ctx context.Context, client *http.Client, statusURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("status endpoint http %d", resp.StatusCode)
	}

	var payload struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.AudioURL, nil
}
