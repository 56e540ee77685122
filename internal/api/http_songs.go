package api

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"songforge/internal/entity"
	"songforge/internal/service"
	"songforge/internal/suno"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CreateSong 发起一次完整的歌曲生成（歌词 + 音乐）。
// 音乐渲染是异步的，成功时返回 202 与任务 ID。
func (h *HTTPHandler) CreateSong(c *gin.Context) {
	var req entity.CreateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled"
	}
	genre := strings.TrimSpace(req.Genre)
	if genre == "" {
		genre = "pop"
	}
	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = genre
	}

	// style 为 instrumental 时强制纯音乐模式，风格退回到 genre
	instrumental := false
	if strings.ToLower(style) == "instrumental" {
		instrumental = true
		style = genre
	}

	logrus.WithFields(logrus.Fields{
		"title":        title,
		"genre":        genre,
		"mood":         req.Mood,
		"theme":        req.Theme,
		"style":        style,
		"instrumental": instrumental,
	}).Info("creating song")

	submission, err := h.songService.GenerateSong(c.Request.Context(), service.SongRequest{
		Title:        title,
		Theme:        req.Theme,
		Genre:        genre,
		Mood:         req.Mood,
		Style:        style,
		Instrumental: instrumental,
		WebhookURL:   strings.TrimSpace(req.WebhookURL),
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Song generation started",
		"task_id":  submission.TaskID,
		"lyrics":   submission.Lyrics,
		"recorded": submission.Recorded,
		"result":   submission.Raw,
	})
}

// CheckStatus 客户端轮询入口。观察到临时音频且本地尚未转存时，
// 顺手完成转存并终结记录。
func (h *HTTPHandler) CheckStatus(c *gin.Context) {
	taskID := strings.TrimSpace(c.Param("task_id"))
	if taskID == "" {
		MissingField(c, "task_id")
		return
	}

	view, err := h.reconciler.ResolveSong(c.Request.Context(), taskID)
	if err != nil {
		h.writeStatusError(c, taskID, err)
		return
	}

	status := http.StatusAccepted
	if view.Ready {
		status = http.StatusOK
	}

	c.JSON(status, entity.StatusResponse{
		Status:   view.Status,
		TaskID:   view.TaskID,
		AudioURL: view.AudioURL,
		Lyrics:   view.Lyrics,
	})
}

// ReceiveSong 音乐服务商的渲染完成回调
func (h *HTTPHandler) ReceiveSong(c *gin.Context) {
	var req entity.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	if strings.TrimSpace(req.TaskID) == "" {
		MissingField(c, "task_id")
		return
	}
	if strings.TrimSpace(req.AudioURL) == "" {
		MissingField(c, "audio_url")
		return
	}

	durableURL, err := h.reconciler.HandleCallback(c.Request.Context(), req.TaskID, req.AudioURL)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Song stored successfully",
		"task_id":        req.TaskID,
		"cloudinary_url": durableURL,
	})
}

// Download 把给定音频链接的内容作为附件回传
func (h *HTTPHandler) Download(c *gin.Context) {
	var req entity.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	audioURL := strings.TrimSpace(req.AudioURL)
	if audioURL == "" {
		MissingField(c, "audio_url")
		return
	}

	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, audioURL, nil)
	if err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid audio_url")
		return
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		logrus.WithError(err).WithField("audio_url", audioURL).Error("download failed")
		ErrorResponse(c, http.StatusInternalServerError, ErrCodeDownloadFailed, "Failed to download file")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ErrorResponse(c, http.StatusInternalServerError, ErrCodeDownloadFailed, "Failed to download file")
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.WithError(err).WithField("audio_url", audioURL).Error("download read failed")
		ErrorResponse(c, http.StatusInternalServerError, ErrCodeDownloadFailed, "Failed to download file")
		return
	}

	filename := "song_" + path.Base(audioURL)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "audio/mpeg", data)
}

// ListSongs 分页列出歌曲记录
func (h *HTTPHandler) ListSongs(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	pageSize, _ := strconv.ParseInt(c.DefaultQuery("page_size", "20"), 10, 64)

	songs, meta, err := h.repo.ListSongs(c.Request.Context(), &entity.SongQuery{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to list songs")
		InternalError(c, "failed to load songs")
		return
	}

	dtos := make([]entity.SongDTO, 0, len(songs))
	for i := range songs {
		dtos = append(dtos, songs[i].ToDTO())
	}

	c.JSON(http.StatusOK, gin.H{
		"songs": dtos,
		"meta":  meta,
	})
}

// writeServiceError 把服务层错误映射为统一的 HTTP 响应
func (h *HTTPHandler) writeServiceError(c *gin.Context, err error) {
	var protocolErr *suno.ProtocolError
	var rejectionErr *suno.RejectionError
	var notFoundErr *service.NotFoundError
	var transferErr *service.TransferError
	var persistErr *service.PersistenceError

	switch {
	case errors.Is(err, suno.ErrTaskNotFound):
		NotFound(c, ErrCodeTaskNotFound, "Task not found at provider")
	case errors.As(err, &protocolErr):
		BadGateway(c, ErrCodeUpstreamProtocol, protocolErr.Reason)
	case errors.As(err, &rejectionErr):
		BadGateway(c, ErrCodeUpstreamRejected, rejectionErr.Error())
	case errors.As(err, &notFoundErr):
		NotFound(c, ErrCodeSongNotFound, "Song not found")
	case errors.As(err, &transferErr):
		if transferErr.Op == "upload" {
			ErrorResponse(c, http.StatusInternalServerError, ErrCodeUploadFailed, "Upload failed")
		} else {
			ErrorResponse(c, http.StatusInternalServerError, ErrCodeDownloadFailed, "Failed to download audio")
		}
	case errors.As(err, &persistErr):
		ErrorResponse(c, http.StatusInternalServerError, ErrCodeDatabaseError, "Database update failed")
	default:
		logrus.WithError(err).Error("unexpected error")
		InternalError(c, err.Error())
	}
}

// writeStatusError 轮询路径的错误映射：服务商明确拒绝时，
// 尽量透传其 HTTP 状态码而不是一律 502。
func (h *HTTPHandler) writeStatusError(c *gin.Context, taskID string, err error) {
	var rejectionErr *suno.RejectionError
	if errors.As(err, &rejectionErr) {
		status := rejectionErr.HTTPStatus
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		ErrorResponseWithDetails(c, status, ErrCodeUpstreamRejected, rejectionErr.Error(), gin.H{"task_id": taskID})
		return
	}
	h.writeServiceError(c, err)
}
