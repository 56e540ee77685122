package service

import "fmt"

// NotFoundError 本地库中不存在该任务的记录
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("song not found: %s", e.TaskID)
}

// PersistenceError 本地库写入失败
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransferError 音频字节的下载或上传失败
type TransferError struct {
	Op  string // download / upload
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("audio %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
