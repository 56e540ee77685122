package entity

// SongUpdates 歌曲更新字段
type SongUpdates struct {
	Title         *string
	Lyrics        *string
	SunoURL       *string
	CloudinaryURL *string
	Status        *SongStatus
	ErrorMessage  *string
	Duration      *int
	WebhookURL    *string
}

// ToMap 转换为 GORM 更新 map（内部使用）。
// cloudinary_url 与 audio_url 始终成对写入，保证两列互为镜像。
func (u SongUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Title != nil {
		updates["title"] = *u.Title
	}
	if u.Lyrics != nil {
		updates["lyrics"] = *u.Lyrics
	}
	if u.SunoURL != nil {
		updates["suno_url"] = *u.SunoURL
	}
	if u.CloudinaryURL != nil {
		updates["cloudinary_url"] = *u.CloudinaryURL
		updates["audio_url"] = *u.CloudinaryURL
	}
	if u.Status != nil {
		updates["status"] = string(*u.Status)
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	if u.Duration != nil {
		updates["duration"] = *u.Duration
	}
	if u.WebhookURL != nil {
		updates["webhook_url"] = *u.WebhookURL
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u SongUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
