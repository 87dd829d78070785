package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxRemoteBytes caps one remote download.
const DefaultMaxRemoteBytes = 256 << 20

// HTTPStorage fetches http(s) media. ffmpeg reads the URL itself, so Locate
// is a pass-through.
type HTTPStorage struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPStorage(timeout time.Duration) *HTTPStorage {
	return &HTTPStorage{Client: &http.Client{Timeout: timeout}, MaxBytes: DefaultMaxRemoteBytes}
}

func (s *HTTPStorage) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedScheme, src, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode)
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxRemoteBytes
	}
	if resp.ContentLength > limit {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %d bytes exceeds the %d byte limit", src, resp.ContentLength, limit)
	}
	return &limitedBody{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}, nil
}

func (s *HTTPStorage) Locate(_ context.Context, src string) (string, error) {
	return src, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
