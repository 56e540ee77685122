package suno

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound 表示服务商侧不存在该任务
var ErrTaskNotFound = errors.New("suno: task not found")

// ProtocolError 表示服务商返回了无法解析或缺少关键字段的响应
type ProtocolError struct {
	Reason string
	Raw    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("suno: %s", e.Reason)
}

// RejectionError 表示服务商以明确的错误码拒绝了请求
type RejectionError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("suno: provider rejected request: %s", e.Message)
	}
	return fmt.Sprintf("suno: provider rejected request (http %d)", e.HTTPStatus)
}
