package api

import (
	"net/http"
	"time"

	"songforge/internal/config"
	"songforge/internal/llm"
	"songforge/internal/model"
	"songforge/internal/service"
	"songforge/internal/storage"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg  config.Config
	repo model.Repository

	// 服务层
	songService *service.SongService
	reconciler  *service.Reconciler

	// 代下载任意音频链接时使用
	httpClient *http.Client
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, lyricsClient llm.LyricsClient, music service.MusicClient, store storage.Storage) *HTTPHandler {
	songSvc := service.NewSongService(cfg, repo, lyricsClient, music)
	reconciler := service.NewReconciler(cfg, repo, music, store)

	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		songService: songSvc,
		reconciler:  reconciler,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Reconciler 暴露对账器给后台补偿任务复用
func (h *HTTPHandler) Reconciler() *service.Reconciler {
	return h.reconciler
}
