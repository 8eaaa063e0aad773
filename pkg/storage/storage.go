// Package storage keeps uploaded call recordings. Paths returned by Save are
// opaque keys; callers store them on the call record as-is.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("storage: object not found")
	ErrInvalidName = errors.New("storage: invalid object name")
)

type RecordingStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// cleanName rejects names that would escape the store root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `\`) {
		return "", ErrInvalidName
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || name == "." {
		return "", ErrInvalidName
	}
	return name, nil
}
