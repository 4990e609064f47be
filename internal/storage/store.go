package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound 对象不存在
	ErrNotFound = errors.New("object not found")
	// ErrExists 对象已存在，存储只追加不覆盖
	ErrExists = errors.New("object already exists")
	// ErrInvalidKey 对象名非法
	ErrInvalidKey = errors.New("invalid object key")
)

// Store 持久化对象存储
//
// key 为形如 "images/<uuid>.jpg" 或 "avatars/<uuid>.jpg" 的相对路径，由调用方生成。
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CleanKey 校验并规范化对象名，拒绝绝对路径与目录穿越
func CleanKey(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, '\\') || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
