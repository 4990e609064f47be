package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore 本地目录存储
//
//	<root>/
//	  images/<uuid>.jpg
//	  avatars/<uuid>.jpg
type FileSystemStore struct {
	root string
}

// NewFileSystemStore 创建本地存储，根目录不存在时自动创建
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Root 返回根目录
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Put 写入新对象，同名对象已存在时返回 ErrExists
// 写入失败时不会留下残缺文件。
func (s *FileSystemStore) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("创建文件失败: %w", err)
	}

	written, copyErr := io.Copy(f, r)
	if copyErr == nil && size >= 0 && written != size {
		copyErr = fmt.Errorf("大小不一致: 期望 %d 字节, 实际 %d", size, written)
	}
	if copyErr == nil {
		copyErr = f.Sync()
	}
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dest)
		return fmt.Errorf("写入文件失败: %w", copyErr)
	}
	return nil
}

// Open 读取对象
func (s *FileSystemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	return f, nil
}

// Delete 删除对象，对象不存在时返回 ErrNotFound
func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("删除文件失败: %w", err)
	}
	return nil
}

// Exists 判断对象是否存在
func (s *FileSystemStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
