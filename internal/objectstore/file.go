package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes artifacts under a local directory. It backs the CLI.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates dir if needed. An empty baseURL yields file:// URLs.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", abs, err)
	}
	if baseURL == "" {
		baseURL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return &FileStore{dir: abs, baseURL: baseURL}, nil
}

func (f *FileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(f.dir, clean), nil
}

func (f *FileStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	p, err := f.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", key, err)
	}

	out, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%s: %w", p, ErrExists)
		}
		return "", fmt.Errorf("create %s: %w", p, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(p)
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("close %s: %w", p, err)
	}
	return joinURL(f.baseURL, key), nil
}

func (f *FileStore) Get(_ context.Context, key string) (*Object, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return &Object{Body: file, Size: info.Size(), ContentType: contentTypeFor(p)}, nil
}

func contentTypeFor(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ext == ".mp3" {
		return "audio/mpeg"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
