package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationNotFound 按主键和当前任务ID都找不到记录
	ErrGenerationNotFound = errors.New("generation not found")
	// ErrInsufficientScenes 可用于合成的场景不足 2 个
	ErrInsufficientScenes = errors.New("need at least 2 scenes to combine")
	// ErrGenerationFailed 生成已失败，不再推进
	ErrGenerationFailed = errors.New("generation has failed")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrStepInProgress 同一步骤正由另一个请求提交
	ErrStepInProgress = errors.New("step is being submitted by another request")
)

// ValidationError 输入校验失败，不会修改任何记录
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation 是否为输入校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
