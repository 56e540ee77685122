package suno

import (
	"encoding/json"
	"strconv"
)

// 服务商的 JSON 形状并不稳定：task id 与音频链接会以不同的键名出现，
// data 字段既可能是对象也可能是非空列表。这里按固定顺序逐条探测，
// 命中第一个非空值即返回。

var taskIDKeys = []string{"id", "task_id", "taskId", "taskID"}

var audioURLKeys = []string{"audio_url", "audioUrl", "suno_url"}

// ExtractTaskID 从任意形状的服务商响应中提取任务 ID。
// 探测顺序：顶层键 → data 对象 → data 列表的每个元素 → metadata 对象。
// 未找到时返回空字符串。
func ExtractTaskID(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	if v := probeKeys(payload, taskIDKeys); v != "" {
		return v
	}

	switch data := payload["data"].(type) {
	case map[string]any:
		if v := probeKeys(data, taskIDKeys); v != "" {
			return v
		}
	case []any:
		for _, item := range data {
			candidate, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if v := probeKeys(candidate, taskIDKeys); v != "" {
				return v
			}
		}
	}

	// 个别接口把 taskId 藏在 metadata 里
	if meta, ok := payload["metadata"].(map[string]any); ok {
		if v := probeKeys(meta, taskIDKeys); v != "" {
			return v
		}
	}

	return ""
}

// ExtractAudioURL 从状态查询响应中提取音频链接，容忍 audio_url/audioUrl
// 两种命名以及 data 为对象或列表的情况。未找到时返回空字符串。
func ExtractAudioURL(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	if v := probeKeys(payload, audioURLKeys); v != "" {
		return v
	}

	switch data := payload["data"].(type) {
	case map[string]any:
		if v := probeKeys(data, audioURLKeys); v != "" {
			return v
		}
	case []any:
		for _, item := range data {
			candidate, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if v := probeKeys(candidate, audioURLKeys); v != "" {
				return v
			}
		}
	}

	return ""
}

func probeKeys(m map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringifyTruthy(m[key]); s != "" {
			return s
		}
	}
	return ""
}

// stringifyTruthy 只看值是否为真：非空字符串原样返回，
// 非零数值（个别接口把 task id 发成数字）转成字符串，其余一律落空。
func stringifyTruthy(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		if f, err := value.Float64(); err != nil || f == 0 {
			return ""
		}
		return value.String()
	case float64:
		if value == 0 {
			return ""
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		if value == 0 {
			return ""
		}
		return strconv.Itoa(value)
	case int64:
		if value == 0 {
			return ""
		}
		return strconv.FormatInt(value, 10)
	}
	return ""
}
