// Package apperr 定义业务层错误分类，handler 层据此映射 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

// Internal 包装基础设施错误，Message 面向调用方，Err 保留原始原因
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 返回错误链上第一个 *Error 的分类，非业务错误统一视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断 err 是否属于指定分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf 返回可以直接展示给调用方的信息
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "Server Error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
