package entity

// CreateSongRequest /create_song 请求体。字段均可省略，服务端补默认值。
type CreateSongRequest struct {
	Title      string `json:"title"`
	Genre      string `json:"genre"`
	Mood       string `json:"mood"`
	Theme      string `json:"theme"`
	Style      string `json:"style"`
	WebhookURL string `json:"webhook_url"`
}

// CallbackRequest 音乐服务商渲染完成后回调 /receive_song 的请求体
type CallbackRequest struct {
	TaskID   string `json:"task_id"`
	AudioURL string `json:"audio_url"`
}

// DownloadRequest /download 请求体
type DownloadRequest struct {
	AudioURL string `json:"audio_url"`
}

// StatusResponse /check_status 响应体
type StatusResponse struct {
	Status   string `json:"status"`
	TaskID   string `json:"task_id"`
	AudioURL string `json:"audio_url"`
	Lyrics   string `json:"lyrics"`
}

// Meta 分页元数据
type Meta struct {
	Total    int64 `json:"total"`
	Page     int64 `json:"page"`
	PageSize int64 `json:"page_size"`
}

// SongQuery 歌曲列表查询参数
type SongQuery struct {
	Status   string
	Page     int64
	PageSize int64
}
