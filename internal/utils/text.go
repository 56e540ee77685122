package utils

import "strings"

const snippetLimit = 120

// SanitizeForLog 去掉非 ASCII 字符，避免歌词等多语言文本污染日志
func SanitizeForLog(value string) string {
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch < 0x80 {
			builder.WriteByte(ch)
		}
	}
	return builder.String()
}

// Snippet 截断长文本用于日志预览
func Snippet(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	runes := []rune(value)
	if len(runes) <= snippetLimit {
		return value
	}

	return string(runes[:snippetLimit]) + "..."
}
