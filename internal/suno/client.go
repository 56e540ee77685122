package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"songforge/internal/config"
	"songforge/internal/utils"

	"github.com/sirupsen/logrus"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/115.0 Safari/537.36"

// Client 封装音乐生成服务商的两个接口：提交生成与查询任务状态。
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

func NewClient(cfg config.Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SunoBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.sunoapi.org"
	}
	model := strings.TrimSpace(cfg.SunoModel)
	if model == "" {
		model = "V4_5"
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     cfg.SunoAPIKey,
		baseURL:    baseURL,
		model:      model,
	}
}

// GenerateRequest /api/v1/generate 的请求体。Style 为空时整个字段省略。
type GenerateRequest struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Prompt       string `json:"prompt"`
	Title        string `json:"title"`
	Mood         string `json:"mood"`
	Theme        string `json:"theme"`
	Model        string `json:"model"`
	CallbackURL  string `json:"callbackUrl"`
	Style        string `json:"style,omitempty"`
}

// Submission 提交生成后的结果。服务商总是异步处理，这里只有任务 ID。
type Submission struct {
	TaskID string
	Raw    map[string]any
}

// RecordInfo 任务状态查询结果。AudioURL 非空即表示渲染完成，
// 该链接是服务商的临时链接，需要另行转存。
type RecordInfo struct {
	TaskID   string
	AudioURL string
	Raw      map[string]any
}

// Completed 判断任务是否已产出音频
func (r *RecordInfo) Completed() bool {
	return r != nil && r.AudioURL != ""
}

// Generate 提交一次音乐生成任务
func (c *Client) Generate(ctx context.Context, request GenerateRequest) (*Submission, error) {
	if request.Model == "" {
		request.Model = c.model
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("suno: marshal request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"title":        request.Title,
		"instrumental": request.Instrumental,
		"style":        request.Style,
		"prompt_bytes": len(request.Prompt),
	}).Info("suno_generate_request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("suno: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suno: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("suno: read response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"status":       resp.StatusCode,
		"body_preview": utils.Snippet(string(respBody)),
	}).Info("suno_generate_response")

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON response", Raw: string(respBody)}
	}

	code, hasCode := jsonCode(payload)
	if resp.StatusCode != http.StatusOK || (hasCode && code != 200) {
		return nil, &RejectionError{
			HTTPStatus: resp.StatusCode,
			Code:       code,
			Message:    jsonMessage(payload),
		}
	}

	taskID := ExtractTaskID(payload)
	if taskID == "" {
		return nil, &ProtocolError{Reason: "no recognizable task id in response", Raw: string(respBody)}
	}

	return &Submission{TaskID: taskID, Raw: payload}, nil
}

// RecordInfo 查询一个任务的渲染进度
func (c *Client) RecordInfo(ctx context.Context, taskID string) (*RecordInfo, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("suno: task id is required")
	}

	endpoint := fmt.Sprintf("%s/api/v1/generate/record-info/?taskId=%s", c.baseURL, url.QueryEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("suno: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suno: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("suno: read response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"task_id":      taskID,
		"status":       resp.StatusCode,
		"body_preview": utils.Snippet(string(respBody)),
	}).Debug("suno_record_info_response")

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON response", Raw: string(respBody)}
	}

	if resp.StatusCode == http.StatusNotFound || jsonStatus(payload) == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	code, hasCode := jsonCode(payload)
	if resp.StatusCode != http.StatusOK || (hasCode && code != 200) {
		return nil, &RejectionError{
			HTTPStatus: resp.StatusCode,
			Code:       code,
			Message:    jsonMessage(payload),
		}
	}

	normalizedID := ExtractTaskID(payload)
	if normalizedID == "" {
		normalizedID = taskID
	}

	return &RecordInfo{
		TaskID:   normalizedID,
		AudioURL: ExtractAudioURL(payload),
		Raw:      payload,
	}, nil
}

func jsonCode(payload map[string]any) (int, bool) {
	v, ok := payload["code"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func jsonStatus(payload map[string]any) int {
	if f, ok := payload["status"].(float64); ok {
		return int(f)
	}
	return 0
}

func jsonMessage(payload map[string]any) string {
	for _, key := range []string{"msg", "message", "error"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
