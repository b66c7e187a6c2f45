// Package blobstore mirrors acquired PDFs to durable storage and hands out
// their public URLs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidName = errors.New("blobstore: invalid object name")
	ErrEmptyBlob   = errors.New("blobstore: empty object")
)

// Store is the upload/public-URL capability used by acquisition
type Store interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	PublicURL(name string) string
}

// LocalStore writes objects under a directory; their public URL is
// baseURL + "/" + name, or a file:// URL when no base is configured.
type LocalStore struct {
	dir     string
	baseURL string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blobstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{dir: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload writes data atomically and returns its public URL. An existing
// object with the same name is replaced.
func (s *LocalStore) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blobstore: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blobstore: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("blobstore: store %s: %w", name, err)
	}

	return s.PublicURL(name), nil
}

func (s *LocalStore) PublicURL(name string) string {
	if s.baseURL == "" {
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.dir, name))}).String()
	}
	return s.baseURL + "/" + url.PathEscape(name)
}

// Path returns where name is stored on disk
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
