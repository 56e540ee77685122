package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"songforge/internal/config"
	"songforge/internal/entity"
	"songforge/internal/llm"
	"songforge/internal/model"
	"songforge/internal/suno"
	"songforge/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MusicClient 音乐服务商客户端接口（由 suno.Client 实现）
type MusicClient interface {
	Generate(ctx context.Context, request suno.GenerateRequest) (*suno.Submission, error)
	RecordInfo(ctx context.Context, taskID string) (*suno.RecordInfo, error)
}

// SongService 生成编排：先出歌词，再向音乐服务商提交异步任务，
// 并在拿到任务 ID 后落一条 processing 状态的歌曲记录。
type SongService struct {
	cfg    config.Config
	repo   model.Repository
	lyrics llm.LyricsClient
	music  MusicClient
}

// NewSongService 创建生成编排服务
func NewSongService(cfg config.Config, repo model.Repository, lyricsClient llm.LyricsClient, music MusicClient) *SongService {
	return &SongService{
		cfg:    cfg,
		repo:   repo,
		lyrics: lyricsClient,
		music:  music,
	}
}

// GenerateLyrics 按固定模板生成歌词
func (s *SongService) GenerateLyrics(ctx context.Context, theme, genre, mood string, verseCount int) (string, error) {
	if verseCount <= 0 {
		verseCount = 2
	}

	prompt := fmt.Sprintf(
		"Write a %d-verse song on the theme of '%s' in the style of '%s', with a '%s' mood. "+
			"Format it as proper lyrics with line breaks.",
		verseCount, theme, genre, mood,
	)

	lyrics, err := s.lyrics.GenerateLyrics(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("lyrics generation failed: %w", err)
	}

	logrus.WithField("lyrics_preview", utils.Snippet(utils.SanitizeForLog(lyrics))).Info("lyrics generated")
	return lyrics, nil
}

// MusicRequest 音乐生成参数
type MusicRequest struct {
	Lyrics       string
	Style        string
	Title        string
	Mood         string
	Theme        string
	CallbackURL  string
	CustomMode   bool
	Instrumental bool
	WebhookURL   string
}

// MusicSubmission 音乐提交结果。服务商只会异步处理，这里没有音频。
// Recorded 表示本地记录是否已经落库：服务商接受了任务但本地插入失败时为 false，
// 调用方据此可以感知“服务商有任务、本地无记录”的风险而不是从日志里翻。
type MusicSubmission struct {
	TaskID   string
	Recorded bool
	Raw      map[string]any
}

// GenerateMusic 向音乐服务商提交一次生成任务
func (s *SongService) GenerateMusic(ctx context.Context, req MusicRequest) (*MusicSubmission, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled"
	}

	callbackURL := strings.TrimSpace(req.CallbackURL)
	if callbackURL == "" {
		callbackURL = strings.TrimRight(s.cfg.AppBaseURL, "/") + "/receive_song"
		logrus.WithField("callback_url", callbackURL).Info("auto-generated callback url")
	}

	// 纯音乐模式下整个 style 字段不发给服务商
	style := strings.TrimSpace(req.Style)
	if req.Instrumental || strings.ToLower(style) == "instrumental" {
		style = ""
	}

	submission, err := s.music.Generate(ctx, suno.GenerateRequest{
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Prompt:       req.Lyrics,
		Title:        title,
		Mood:         req.Mood,
		Theme:        req.Theme,
		CallbackURL:  callbackURL,
		Style:        style,
	})
	if err != nil {
		return nil, err
	}

	song := &entity.DbSong{
		TaskID:     submission.TaskID,
		Title:      title,
		Lyrics:     req.Lyrics,
		Style:      req.Style,
		Mood:       req.Mood,
		Theme:      req.Theme,
		Status:     entity.SongStatusProcessing,
		WebhookURL: req.WebhookURL,
	}

	recorded := true
	created, err := s.repo.CreateSongIfAbsent(ctx, song)
	if err != nil {
		// 服务商已接受任务，不因本地落库失败而让请求整体失败，
		// 但通过 Recorded=false 把这个不一致暴露给调用方
		recorded = false
		logrus.WithError(err).WithField("task_id", submission.TaskID).Error("failed to persist song record")
	} else if created {
		logrus.WithField("task_id", submission.TaskID).Info("created song record")
	}

	return &MusicSubmission{
		TaskID:   submission.TaskID,
		Recorded: recorded,
		Raw:      submission.Raw,
	}, nil
}

// SongRequest 一首歌的完整生成参数
type SongRequest struct {
	Title        string
	Theme        string
	Genre        string
	Mood         string
	Style        string
	Instrumental bool
	WebhookURL   string
}

// SongSubmission 完整生成的提交结果
type SongSubmission struct {
	TaskID   string
	Lyrics   string
	Recorded bool
	Raw      map[string]any
}

// GenerateSong 先生成歌词再提交音乐任务。标题会追加时间戳和随机后缀，
// 避免同名请求在服务商侧相互覆盖。
func (s *SongService) GenerateSong(ctx context.Context, req SongRequest) (*SongSubmission, error) {
	title := uniqueTitle(req.Title)

	logrus.WithFields(logrus.Fields{
		"title": utils.SanitizeForLog(title),
		"theme": req.Theme,
		"genre": req.Genre,
		"mood":  req.Mood,
	}).Info("creating song")

	lyrics, err := s.GenerateLyrics(ctx, req.Theme, req.Genre, req.Mood, 2)
	if err != nil {
		return nil, err
	}

	submission, err := s.GenerateMusic(ctx, MusicRequest{
		Lyrics:       lyrics,
		Style:        req.Style,
		Title:        title,
		Mood:         req.Mood,
		Theme:        req.Theme,
		CustomMode:   true,
		Instrumental: req.Instrumental,
		WebhookURL:   req.WebhookURL,
	})
	if err != nil {
		return nil, err
	}

	return &SongSubmission{
		TaskID:   submission.TaskID,
		Lyrics:   lyrics,
		Recorded: submission.Recorded,
		Raw:      submission.Raw,
	}, nil
}

// uniqueTitle 给标题追加时间戳与 8 位随机十六进制后缀
func uniqueTitle(title string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "Untitled"
	}
	suffix := fmt.Sprintf("%s_%s",
		time.Now().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
	)
	return base + "_" + suffix
}
