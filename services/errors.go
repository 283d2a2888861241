package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// 业务错误分类，控制器据此映射为不同的响应码
// 被拒绝的操作不会修改任何状态
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// notFound 包装为 ErrNotFound
func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// forbidden 包装为 ErrForbidden
func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrForbidden)
}

// conflict 包装为 ErrConflict
func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// invalidInput 包装为 ErrInvalidInput
func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// wrapLookup 将 gorm 的 ErrRecordNotFound 转换为 ErrNotFound
func wrapLookup(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("%s not found", what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
