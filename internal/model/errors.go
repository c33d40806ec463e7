package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindService       Kind = "service"
	KindTimeout       Kind = "timeout"
	KindPersistence   Kind = "persistence"
)

// Error 带分类和阶段信息的错误
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError 配置缺失或非法
func ConfigurationError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// ValidationError 请求参数非法
func ValidationError(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// ServiceError 上游AI服务失败
func ServiceError(stage, msg string, err error) error {
	return &Error{Kind: KindService, Stage: stage, Msg: msg, Err: err}
}

// TimeoutError 整体时间预算耗尽
func TimeoutError(stage string, err error) error {
	return &Error{Kind: KindTimeout, Stage: stage, Msg: "Operation timed out", Err: err}
}

// PersistenceError 持久化提交失败
func PersistenceError(err error) error {
	return &Error{Kind: KindPersistence, Stage: "persisting", Msg: "Story persistence failed", Err: err}
}

// KindOf 返回错误分类，未分类的错误按 service 处理
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindService
}

// Message 返回面向调用方的错误信息
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
