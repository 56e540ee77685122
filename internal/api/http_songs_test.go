package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"songforge/internal/config"
	"songforge/internal/entity"
	"songforge/internal/storage"
	"songforge/internal/suno"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ---- 测试替身 ----

type memoryRepo struct {
	mu    sync.Mutex
	songs map[string]*entity.DbSong
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{songs: map[string]*entity.DbSong{}}
}

func (m *memoryRepo) CreateSongIfAbsent(_ context.Context, song *entity.DbSong) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.songs[song.TaskID]; ok {
		return false, nil
	}
	clone := *song
	m.songs[song.TaskID] = &clone
	return true, nil
}

func (m *memoryRepo) GetSongByTaskID(_ context.Context, taskID string) (*entity.DbSong, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	song, ok := m.songs[taskID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *song
	return &clone, nil
}

func (m *memoryRepo) UpdateSong(_ context.Context, taskID string, updates entity.SongUpdates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	song, ok := m.songs[taskID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if updates.SunoURL != nil {
		song.SunoURL = *updates.SunoURL
	}
	if updates.CloudinaryURL != nil {
		song.CloudinaryURL = *updates.CloudinaryURL
		song.AudioURL = *updates.CloudinaryURL
	}
	if updates.Status != nil {
		song.Status = *updates.Status
	}
	return nil
}

func (m *memoryRepo) CompleteSong(_ context.Context, taskID, sunoURL, durableURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	song, ok := m.songs[taskID]
	if !ok || song.Status == entity.SongStatusCompleted {
		return false, nil
	}
	song.SunoURL = sunoURL
	song.CloudinaryURL = durableURL
	song.AudioURL = durableURL
	song.Status = entity.SongStatusCompleted
	return true, nil
}

func (m *memoryRepo) MarkSongFailed(_ context.Context, taskID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if song, ok := m.songs[taskID]; ok && song.Status != entity.SongStatusCompleted {
		song.Status = entity.SongStatusFailed
		song.ErrorMessage = errMsg
		song.RetryCount++
	}
	return nil
}

func (m *memoryRepo) IncrementRetry(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if song, ok := m.songs[taskID]; ok {
		song.RetryCount++
	}
	return nil
}

func (m *memoryRepo) ListSongs(_ context.Context, _ *entity.SongQuery) ([]entity.DbSong, *entity.Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	songs := make([]entity.DbSong, 0, len(m.songs))
	for _, song := range m.songs {
		songs = append(songs, *song)
	}
	return songs, &entity.Meta{Total: int64(len(songs)), Page: 1, PageSize: 20}, nil
}

func (m *memoryRepo) ListStaleProcessing(_ context.Context, _ time.Duration, _ int) ([]entity.DbSong, error) {
	return nil, nil
}

func (m *memoryRepo) song(taskID string) *entity.DbSong {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.songs[taskID]
}

type stubLyrics struct {
	lyrics string
	err    error
}

func (s *stubLyrics) GenerateLyrics(context.Context, string) (string, error) {
	return s.lyrics, s.err
}

type stubMusic struct {
	mu          sync.Mutex
	taskID      string
	generateErr error
	record      *suno.RecordInfo
	recordErr   error
	lastRequest suno.GenerateRequest
}

func (s *stubMusic) Generate(_ context.Context, request suno.GenerateRequest) (*suno.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequest = request
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &suno.Submission{TaskID: s.taskID, Raw: map[string]any{"taskId": s.taskID}}, nil
}

func (s *stubMusic) RecordInfo(_ context.Context, taskID string) (*suno.RecordInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	if s.record != nil {
		return s.record, nil
	}
	return &suno.RecordInfo{TaskID: taskID}, nil
}

type stubStorage struct{}

func (stubStorage) Save(_ context.Context, _ []byte, opts storage.SaveOptions) (string, error) {
	return fmt.Sprintf("%s/%s.%s", opts.Category, opts.BaseName, opts.Extension), nil
}

func testRouter(repo *memoryRepo, lyrics *stubLyrics, music *stubMusic) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		AppBaseURL:           "https://songforge.example.com",
		StoragePublicBaseURL: "https://cdn.example.com/files",
	}
	handler := NewHTTPHandler(cfg, repo, lyrics, music, stubStorage{})

	r := gin.New()
	r.POST("/create_song", handler.CreateSong)
	r.GET("/check_status/:task_id", handler.CheckStatus)
	r.POST("/receive_song", handler.ReceiveSong)
	r.POST("/download", handler.Download)
	r.GET("/songs", handler.ListSongs)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return payload
}

// ---- 用例 ----

func TestCreateSongEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	music := &stubMusic{taskID: "task-1"}
	router := testRouter(repo, &stubLyrics{lyrics: "Verse one\nVerse two"}, music)

	w := doJSON(t, router, http.MethodPost, "/create_song", map[string]string{
		"title": "Summer Nights",
		"genre": "pop",
		"mood":  "happy",
		"theme": "summer",
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	payload := decodeBody(t, w)
	if payload["message"] != "Song generation started" {
		t.Errorf("unexpected message %v", payload["message"])
	}
	if payload["task_id"] != "task-1" {
		t.Errorf("unexpected task_id %v", payload["task_id"])
	}
	if payload["lyrics"] != "Verse one\nVerse two" {
		t.Errorf("unexpected lyrics %v", payload["lyrics"])
	}
	if payload["recorded"] != true {
		t.Errorf("expected recorded=true, got %v", payload["recorded"])
	}

	if repo.song("task-1") == nil {
		t.Fatal("expected a song record")
	}
}

func TestCreateSongDefaults(t *testing.T) {
	repo := newMemoryRepo()
	music := &stubMusic{taskID: "task-1"}
	router := testRouter(repo, &stubLyrics{lyrics: "la"}, music)

	w := doJSON(t, router, http.MethodPost, "/create_song", map[string]string{})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	if !strings.HasPrefix(music.lastRequest.Title, "Untitled_") {
		t.Errorf("expected default title, got %q", music.lastRequest.Title)
	}
	// genre 默认 pop，style 未指定时跟随 genre
	if music.lastRequest.Style != "pop" {
		t.Errorf("expected style pop, got %q", music.lastRequest.Style)
	}
}

func TestCreateSongInstrumentalStyle(t *testing.T) {
	repo := newMemoryRepo()
	music := &stubMusic{taskID: "task-1"}
	router := testRouter(repo, &stubLyrics{lyrics: "la"}, music)

	w := doJSON(t, router, http.MethodPost, "/create_song", map[string]string{
		"genre": "jazz",
		"style": "instrumental",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	if !music.lastRequest.Instrumental {
		t.Error("expected instrumental mode")
	}
	// 纯音乐模式下 style 字段不出现在服务商请求里
	if music.lastRequest.Style != "" {
		t.Errorf("style should be omitted for instrumental mode, got %q", music.lastRequest.Style)
	}
	// 本地记录的 style 退回到 genre
	if got := repo.song("task-1").Style; got != "jazz" {
		t.Errorf("stored style should fall back to genre, got %q", got)
	}
}

func TestCreateSongInvalidBody(t *testing.T) {
	router := testRouter(newMemoryRepo(), &stubLyrics{lyrics: "la"}, &stubMusic{taskID: "t"})

	req := httptest.NewRequest(http.MethodPost, "/create_song", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateSongUpstreamRejected(t *testing.T) {
	music := &stubMusic{generateErr: &suno.RejectionError{HTTPStatus: 429, Code: 429, Message: "insufficient credits"}}
	router := testRouter(newMemoryRepo(), &stubLyrics{lyrics: "la"}, music)

	w := doJSON(t, router, http.MethodPost, "/create_song", map[string]string{"theme": "x"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeBody(t, w)
	if payload["code"] != ErrCodeUpstreamRejected {
		t.Errorf("unexpected error code %v", payload["code"])
	}
}

func TestCheckStatusStillRendering(t *testing.T) {
	repo := newMemoryRepo()
	_, _ = repo.CreateSongIfAbsent(context.Background(), &entity.DbSong{
		TaskID: "task-1",
		Title:  "My Song",
		Lyrics: "la la",
		Status: entity.SongStatusProcessing,
	})
	music := &stubMusic{record: &suno.RecordInfo{TaskID: "task-1"}}
	router := testRouter(repo, &stubLyrics{}, music)

	w := doJSON(t, router, http.MethodGet, "/check_status/task-1", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	payload := decodeBody(t, w)
	if payload["status"] != "processing" {
		t.Errorf("unexpected status %v", payload["status"])
	}
	if payload["audio_url"] != "" {
		t.Errorf("expected empty audio_url, got %v", payload["audio_url"])
	}
}

func TestCheckStatusCompleted(t *testing.T) {
	repo := newMemoryRepo()
	_, _ = repo.CreateSongIfAbsent(context.Background(), &entity.DbSong{
		TaskID: "task-1",
		Title:  "My Song",
		Lyrics: "la la",
		Status: entity.SongStatusProcessing,
	})
	_, _ = repo.CompleteSong(context.Background(), "task-1", "tmp", "https://cdn.example.com/files/songs/a.mp3")

	music := &stubMusic{record: &suno.RecordInfo{TaskID: "task-1", AudioURL: "https://suno.example.com/tmp.mp3"}}
	router := testRouter(repo, &stubLyrics{}, music)

	w := doJSON(t, router, http.MethodGet, "/check_status/task-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	payload := decodeBody(t, w)
	if payload["status"] != "completed" {
		t.Errorf("unexpected status %v", payload["status"])
	}
	if payload["audio_url"] != "https://cdn.example.com/files/songs/a.mp3" {
		t.Errorf("unexpected audio_url %v", payload["audio_url"])
	}
	if payload["lyrics"] != "la la" {
		t.Errorf("unexpected lyrics %v", payload["lyrics"])
	}
}

func TestCheckStatusTaskNotFound(t *testing.T) {
	music := &stubMusic{recordErr: fmt.Errorf("%w: task-1", suno.ErrTaskNotFound)}
	router := testRouter(newMemoryRepo(), &stubLyrics{}, music)

	w := doJSON(t, router, http.MethodGet, "/check_status/task-1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeBody(t, w)
	if payload["code"] != ErrCodeTaskNotFound {
		t.Errorf("unexpected error code %v", payload["code"])
	}
}

func TestReceiveSongEndToEnd(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer audio.Close()

	repo := newMemoryRepo()
	_, _ = repo.CreateSongIfAbsent(context.Background(), &entity.DbSong{
		TaskID: "task-1",
		Title:  "My Song",
		Status: entity.SongStatusProcessing,
	})
	router := testRouter(repo, &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodPost, "/receive_song", map[string]string{
		"task_id":   "task-1",
		"audio_url": audio.URL,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	payload := decodeBody(t, w)
	if payload["message"] != "Song stored successfully" {
		t.Errorf("unexpected message %v", payload["message"])
	}
	expected := "https://cdn.example.com/files/songs/My_Song_task-1.mp3"
	if payload["cloudinary_url"] != expected {
		t.Errorf("expected %q, got %v", expected, payload["cloudinary_url"])
	}

	song := repo.song("task-1")
	if song.Status != entity.SongStatusCompleted {
		t.Errorf("expected completed, got %s", song.Status)
	}
	if song.CloudinaryURL != expected || song.AudioURL != expected {
		t.Errorf("url columns not mirrored: cloudinary=%q audio=%q", song.CloudinaryURL, song.AudioURL)
	}
}

func TestReceiveSongMissingFields(t *testing.T) {
	router := testRouter(newMemoryRepo(), &stubLyrics{}, &stubMusic{})

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "缺少 task_id", body: map[string]string{"audio_url": "https://x/a.mp3"}},
		{name: "缺少 audio_url", body: map[string]string{"task_id": "task-1"}},
		{name: "全空", body: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/receive_song", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestReceiveSongUnknownTask(t *testing.T) {
	router := testRouter(newMemoryRepo(), &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodPost, "/receive_song", map[string]string{
		"task_id":   "missing",
		"audio_url": "https://example.com/a.mp3",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDownloadEndpoint(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer audio.Close()

	router := testRouter(newMemoryRepo(), &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodPost, "/download", map[string]string{
		"audio_url": audio.URL + "/track.mp3",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="song_track.mp3"` {
		t.Errorf("unexpected content disposition %q", got)
	}
	if w.Body.String() != "mp3-bytes" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestDownloadFailure(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer audio.Close()

	router := testRouter(newMemoryRepo(), &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodPost, "/download", map[string]string{"audio_url": audio.URL})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	if payload["code"] != ErrCodeDownloadFailed {
		t.Errorf("unexpected error code %v", payload["code"])
	}
}

func TestDownloadMissingURL(t *testing.T) {
	router := testRouter(newMemoryRepo(), &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodPost, "/download", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListSongsEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	_, _ = repo.CreateSongIfAbsent(context.Background(), &entity.DbSong{
		TaskID:        "task-1",
		Title:         "My Song",
		Status:        entity.SongStatusCompleted,
		CloudinaryURL: "https://cdn.example.com/files/songs/a.mp3",
	})
	router := testRouter(repo, &stubLyrics{}, &stubMusic{})

	w := doJSON(t, router, http.MethodGet, "/songs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	payload := decodeBody(t, w)
	songs, ok := payload["songs"].([]any)
	if !ok || len(songs) != 1 {
		t.Fatalf("expected one song, got %v", payload["songs"])
	}
	first, _ := songs[0].(map[string]any)
	// 对外的 audio_url 永远取 cloudinary_url
	if first["audio_url"] != "https://cdn.example.com/files/songs/a.mp3" {
		t.Errorf("unexpected audio_url %v", first["audio_url"])
	}
}

func TestPollThenCallbackFlow(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer audio.Close()

	repo := newMemoryRepo()
	music := &stubMusic{taskID: "task-1"}
	router := testRouter(repo, &stubLyrics{lyrics: "la la"}, music)

	// 创建
	w := doJSON(t, router, http.MethodPost, "/create_song", map[string]string{"theme": "summer"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", w.Code)
	}

	// 未就绪时轮询
	w = doJSON(t, router, http.MethodGet, "/check_status/task-1", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("poll: expected 202, got %d", w.Code)
	}

	// 服务商回调
	w = doJSON(t, router, http.MethodPost, "/receive_song", map[string]string{
		"task_id":   "task-1",
		"audio_url": audio.URL,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 回调后再轮询应返回 200 与永久链接
	w = doJSON(t, router, http.MethodGet, "/check_status/task-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("final poll: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeBody(t, w)
	if payload["status"] != "completed" {
		t.Errorf("unexpected final status %v", payload["status"])
	}
	if payload["audio_url"] == "" {
		t.Error("expected a durable audio url")
	}
}
