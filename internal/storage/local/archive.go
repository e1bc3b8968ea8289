// Package local archives page bodies under a directory on local disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local archive.
type Config struct {
	// BaseDir is created when missing and must be writable.
	BaseDir string
}

// Archive writes page bodies below a base directory.
type Archive struct {
	baseDir string
}

// New validates the base directory and returns an Archive rooted there.
func New(cfg Config) (*Archive, error) {
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		return nil, errors.New("archive base directory is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve archive directory: %w", err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(abs, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path %s is not a directory", abs)
	}

	check, err := os.CreateTemp(abs, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	_ = check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return nil, fmt.Errorf("clean up write check: %w", err)
	}

	return &Archive{baseDir: abs}, nil
}

// PutObject writes body to key below the base directory and returns a file:// URI.
// An existing object is replaced atomically.
func (a *Archive) PutObject(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := a.resolve(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("publish object %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}

func (a *Archive) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("archive key is required")
	}
	target := filepath.Join(a.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(target, a.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("archive key %q escapes the base directory", key)
	}
	return target, nil
}
