package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SysfsStore reads and writes attributes as files below a base directory.
type SysfsStore struct {
	basePath string
}

// NewSysfsStore creates a store rooted at basePath.
func NewSysfsStore(basePath string) *SysfsStore {
	return &SysfsStore{basePath: basePath}
}

// BasePath returns the directory the store is rooted at.
func (s *SysfsStore) BasePath() string {
	return s.basePath
}

// Read returns the trimmed content of the attribute file.
func (s *SysfsStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, classify(err))
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("failed to read %s: %w", path, ErrEmpty)
	}
	return value, nil
}

// Write replaces the attribute with value. Sysfs attributes are opened
// without O_CREATE or O_TRUNC.
func (s *SysfsStore) Write(ctx context.Context, key, value string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(key)
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, classify(err))
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if _, err := file.WriteString(value); err != nil {
		// The driver answers malformed values with EINVAL on write.
		return fmt.Errorf("failed to write %q to %s: %w: %v", value, path, ErrInvalid, err)
	}
	return nil
}

func (s *SysfsStore) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w (try running as root): %v", ErrPermission, err)
	default:
		return err
	}
}
