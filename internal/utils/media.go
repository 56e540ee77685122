package utils

import (
	"mime"
	"strings"
)

// 常见音频类型的扩展名映射，mime 包对部分类型给出的候选并不理想
var audioExtByMime = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/ogg":   "ogg",
	"audio/mp4":   "m4a",
	"audio/aac":   "aac",
	"audio/flac":  "flac",
	"audio/webm":  "webm",
}

// ExtensionFromMime 根据 Content-Type 推断文件扩展名（不含前导点），
// 无法识别时返回空字符串。
func ExtensionFromMime(contentType string) string {
	trimmed := strings.TrimSpace(contentType)
	if trimmed == "" {
		return ""
	}
	if idx := strings.Index(trimmed, ";"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	trimmed = strings.ToLower(trimmed)

	if ext, ok := audioExtByMime[trimmed]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(trimmed)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return strings.TrimPrefix(exts[0], ".")
}
