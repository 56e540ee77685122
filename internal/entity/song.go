package entity

import (
	"time"
)

// SongStatus 歌曲生成任务的生命周期状态
type SongStatus string

const (
	SongStatusPending    SongStatus = "pending"
	SongStatusProcessing SongStatus = "processing"
	SongStatusCompleted  SongStatus = "completed"
	SongStatusFailed     SongStatus = "failed"
)

// DbSong 每个生成任务对应一行记录，以服务商的 task_id 为业务主键。
type DbSong struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID string `gorm:"column:task_id;type:varchar(255);uniqueIndex;not null" json:"task_id"`

	Title      string `gorm:"column:title;type:varchar(255);not null;default:Untitled" json:"title"`
	Lyrics     string `gorm:"column:lyrics;type:text" json:"lyrics"`
	Style      string `gorm:"column:style;type:varchar(100);not null;default:unknown" json:"style"`
	Mood       string `gorm:"column:mood;type:varchar(100);not null;default:neutral" json:"mood"`
	Theme      string `gorm:"column:theme;type:varchar(100);not null;default:general" json:"theme"`
	ArtistName string `gorm:"column:artist_name;type:varchar(100)" json:"artist_name"`

	// SunoURL 是服务商返回的临时链接，可能过期；CloudinaryURL 是转存后的永久链接。
	// AudioURL 始终与 CloudinaryURL 保持一致，仅为兼容旧客户端而保留。
	SunoURL       string `gorm:"column:suno_url;type:text" json:"suno_url"`
	CloudinaryURL string `gorm:"column:cloudinary_url;type:text" json:"cloudinary_url"`
	AudioURL      string `gorm:"column:audio_url;type:varchar(500)" json:"audio_url"`

	Status       SongStatus `gorm:"column:status;type:varchar(32);not null;default:pending;index" json:"status"`
	RetryCount   int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message"`

	Duration *int `gorm:"column:duration" json:"duration"`

	// WebhookURL 为可选的用户回调地址，歌曲完成后会尽力通知一次
	WebhookURL string `gorm:"column:webhook_url;type:varchar(500)" json:"webhook_url,omitempty"`
}

// TableName 指定表名
func (DbSong) TableName() string {
	return "song"
}

// IsCompleted 判断任务是否已终结为 completed
func (s *DbSong) IsCompleted() bool {
	return s != nil && s.Status == SongStatusCompleted
}

// SongDTO API 响应中的歌曲视图
type SongDTO struct {
	ID            uint   `json:"id"`
	TaskID        string `json:"task_id"`
	Title         string `json:"title"`
	Lyrics        string `json:"lyrics"`
	Style         string `json:"style"`
	Mood          string `json:"mood"`
	Theme         string `json:"theme"`
	ArtistName    string `json:"artist_name"`
	SunoURL       string `json:"suno_url"`
	CloudinaryURL string `json:"cloudinary_url"`
	AudioURL      string `json:"audio_url"`
	Status        string `json:"status"`
	RetryCount    int    `json:"retry_count"`
	ErrorMessage  string `json:"error_message"`
	Duration      *int   `json:"duration"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ToDTO 转换为 API 响应结构。audio_url 对外始终取 cloudinary_url。
func (s *DbSong) ToDTO() SongDTO {
	if s == nil {
		return SongDTO{}
	}
	return SongDTO{
		ID:            s.ID,
		TaskID:        s.TaskID,
		Title:         s.Title,
		Lyrics:        s.Lyrics,
		Style:         s.Style,
		Mood:          s.Mood,
		Theme:         s.Theme,
		ArtistName:    s.ArtistName,
		SunoURL:       s.SunoURL,
		CloudinaryURL: s.CloudinaryURL,
		AudioURL:      s.CloudinaryURL,
		Status:        string(s.Status),
		RetryCount:    s.RetryCount,
		ErrorMessage:  s.ErrorMessage,
		Duration:      s.Duration,
		CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
