// Package storage opens asset media by source URI.
//
// An asset src is a local path, a file:// URI under the upload root, an
// s3://bucket/key URI, or an http(s) URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var (
	ErrNotFound          = errors.New("media not found")
	ErrUnsupportedScheme = errors.New("unsupported media source")
	ErrOutsideRoot       = errors.New("path escapes the upload root")
)

// Source is the only interface the media layer depends on.
// Swap the implementation in main.go; callers never change.
type Source interface {
	// Open streams the media bytes.
	Open(ctx context.Context, src string) (io.ReadCloser, error)
	// Locate returns a path or URL that ffmpeg and ffprobe can read directly.
	Locate(ctx context.Context, src string) (string, error)
}

// Mux routes a source to the backend for its scheme.
// Without HTTP, http(s) sources can be located for ffmpeg but not opened.
type Mux struct {
	Local *LocalStorage
	S3    *S3Storage
	HTTP  *HTTPStorage
}

func (m *Mux) backend(src string) (Source, *url.URL, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedScheme, src, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "", "file":
		if m.Local != nil {
			return m.Local, u, nil
		}
	case "s3":
		if m.S3 != nil {
			return m.S3, u, nil
		}
	case "http", "https":
		if m.HTTP != nil {
			return m.HTTP, u, nil
		}
		return nil, u, nil
	}
	return nil, u, fmt.Errorf("%w: %q", ErrUnsupportedScheme, src)
}

func (m *Mux) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	b, _, err := m.backend(src)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: remote %q can only be located", ErrUnsupportedScheme, src)
	}
	return b.Open(ctx, src)
}

func (m *Mux) Locate(ctx context.Context, src string) (string, error) {
	b, u, err := m.backend(src)
	if err != nil {
		return "", err
	}
	if b == nil {
		return u.String(), nil
	}
	return b.Locate(ctx, src)
}
