package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"songforge/internal/config"
	"songforge/internal/utils"

	"github.com/sirupsen/logrus"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// LyricsClient 歌词生成接口，便于在测试中替换为假实现。
type LyricsClient interface {
	GenerateLyrics(ctx context.Context, prompt string) (string, error)
}

// GeminiClient 通过 Gemini REST 接口生成歌词
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	endpoint   string
}

func NewGeminiClient(cfg config.Config) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, errors.New("gemini api key is not configured")
	}

	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     cfg.GeminiAPIKey,
		model:      model,
		endpoint:   fmt.Sprintf(geminiEndpoint, model),
	}, nil
}

type (
	geminiPart struct {
		Text string `json:"text,omitempty"`
	}
	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}
	geminiConfig struct {
		Temperature float64 `json:"temperature"`
	}
	geminiRequest struct {
		Contents         []geminiContent `json:"contents"`
		GenerationConfig *geminiConfig   `json:"generationConfig,omitempty"`
	}
)

type (
	geminiRespContent struct {
		Parts json.RawMessage `json:"parts"`
	}
	geminiCandidate struct {
		Content      geminiRespContent `json:"content"`
		FinishReason string            `json:"finishReason,omitempty"`
	}
	geminiError struct {
		Message string `json:"message"`
	}
	geminiResponse struct {
		Candidates []geminiCandidate `json:"candidates"`
		Error      *geminiError      `json:"error,omitempty"`
	}
)

// GenerateLyrics 调用 Gemini 生成歌词并规整为单个字符串
func (g *GeminiClient) GenerateLyrics(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is empty")
	}

	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiConfig{Temperature: 0.1},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini marshal request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"model":          g.model,
		"prompt_preview": utils.Snippet(prompt),
	}).Info("gemini_generate_lyrics_start")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// 走请求头传 key，避免 API key 出现在 URL 日志里
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini read response: %w", err)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("gemini decode response: %w", err)
	}

	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", fmt.Errorf("gemini error: %s", decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini http %d: %s", resp.StatusCode, utils.Snippet(string(respBody)))
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var fragments any
	if len(decoded.Candidates[0].Content.Parts) > 0 {
		if err := json.Unmarshal(decoded.Candidates[0].Content.Parts, &fragments); err != nil {
			return "", fmt.Errorf("gemini decode parts: %w", err)
		}
	}

	lyrics := NormalizeContent(fragments)
	if strings.TrimSpace(lyrics) == "" {
		return "", errors.New("gemini returned empty content")
	}

	logrus.WithFields(logrus.Fields{
		"model":          g.model,
		"lyrics_preview": utils.Snippet(utils.SanitizeForLog(lyrics)),
	}).Info("gemini_generate_lyrics_done")

	return lyrics, nil
}

// NormalizeContent 把 LLM 返回的内容规整为单个字符串。
// 内容可能是纯字符串，也可能是片段列表，片段本身是字符串或带 text 字段的对象。
func NormalizeContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		pieces := make([]string, 0, len(v))
		for _, item := range v {
			switch frag := item.(type) {
			case string:
				pieces = append(pieces, frag)
			case map[string]any:
				if text, ok := frag["text"].(string); ok {
					pieces = append(pieces, text)
				}
			}
		}
		return strings.Join(pieces, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
