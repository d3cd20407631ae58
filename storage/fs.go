package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Backend on a local directory. It is the development and
// test backend; DownloadURL returns paths under URLPrefix, which the HTTP
// layer serves statically from BaseDir.
type FS struct {
	baseDir   string
	urlPrefix string
}

var _ Backend = (*FS)(nil)

// NewFS creates the directory-backed store rooted at baseDir.
func NewFS(baseDir, urlPrefix string) (*FS, error) {
	if baseDir == "" {
		return nil, errors.New("fs: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fs: create base directory: %w", err)
	}
	return &FS{baseDir: baseDir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// BaseDir returns the directory files are stored under.
func (b *FS) BaseDir() string {
	return b.baseDir
}

// path maps an object key onto the base directory, refusing keys that
// would escape it.
func (b *FS) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("fs: invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, clean), nil
}

func (b *FS) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fs: create object dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("fs: create object: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("fs: write object: %w", err)
	}
	return nil
}

func (b *FS) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fs: open object: %w", err)
	}
	return f, nil
}

func (b *FS) Delete(ctx context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fs: delete object: %w", err)
	}
	return nil
}

func (b *FS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: list %s: %w", prefix, err)
	}
	return keys, nil
}

func (b *FS) DownloadURL(ctx context.Context, key, filename string) (string, error) {
	p, err := b.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("fs: stat object: %w", err)
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return b.urlPrefix + "/" + strings.Join(parts, "/"), nil
}
