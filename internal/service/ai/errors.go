package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Completion error categories.
const (
	ErrorTypeNetwork = "network"
	ErrorTypeAPI     = "api"
	ErrorTypeTimeout = "timeout"
	ErrorTypeParse   = "parse"
)

// ErrEmptyCompletion 表示后端返回成功但没有可用文本。
var ErrEmptyCompletion = errors.New("completion returned no content")

// CompletionError 描述一次补全调用失败的原因。
type CompletionError struct {
	Type    string
	Code    int
	Message string
	Err     error
}

func (e *CompletionError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("completion %s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("completion %s error: %s", e.Type, e.Message)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func NewNetworkError(err error) *CompletionError {
	return &CompletionError{Type: ErrorTypeNetwork, Message: "failed to reach completion backend", Err: err}
}

func NewAPIError(code int, message string) *CompletionError {
	return &CompletionError{Type: ErrorTypeAPI, Code: code, Message: message}
}

func NewTimeoutError(err error) *CompletionError {
	return &CompletionError{Type: ErrorTypeTimeout, Message: "completion request timed out", Err: err}
}

func NewParseError(message string, err error) *CompletionError {
	return &CompletionError{Type: ErrorTypeParse, Message: message, Err: err}
}

// Classify 把任意错误归类为 CompletionError，已分类的错误原样返回。
func Classify(err error) *CompletionError {
	if err == nil {
		return nil
	}

	var completionErr *CompletionError
	if errors.As(err, &completionErr) {
		return completionErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return NewParseError("empty completion", err)
	}

	return NewNetworkError(err)
}
