package serverutils

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that is safe to render to the caller.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func ValidationError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, "参数错误: "+message, err)
}

func NotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, message, nil)
}

func StorageError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "数据存储失败", err)
}

func GenerationError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "回答生成失败", err)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "服务器内部错误", err)
}

// AsAppError unwraps err into an *AppError, wrapping unknown errors as internal ones.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err)
}
