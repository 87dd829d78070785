package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root, "clip.mp4"), []byte("frames"), 0o644))
	return s
}

func TestLocalOpenAndLocate(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, src := range []string{"clip.mp4", "file://clip.mp4", "file://" + filepath.Join(s.Root, "clip.mp4")} {
		rc, err := s.Open(ctx, src)
		require.NoError(t, err, src)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "frames", string(data), src)
	}

	p, err := s.Locate(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root, "clip.mp4"), p)
}

func TestLocalRejectsTraversal(t *testing.T) {
	s := newLocal(t)
	for _, src := range []string{"../secret", "file://../../etc/passwd", "/etc/passwd"} {
		_, err := s.Open(context.Background(), src)
		assert.ErrorIs(t, err, ErrOutsideRoot, src)
	}
}

func TestLocalMissing(t *testing.T) {
	s := newLocal(t)
	_, err := s.Open(context.Background(), "nope.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Locate(context.Background(), "nope.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Open(t *testing.T) {
	s := NewS3StorageWithClient(&fakeS3{objects: map[string]string{"media/raw/a.mp4": "bytes"}})

	rc, err := s.Open(context.Background(), "s3://media/raw/a.mp4")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "bytes", string(data))

	_, err = s.Open(context.Background(), "s3://media/raw/b.mp4")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open(context.Background(), "s3://media")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestS3LocatePresigns(t *testing.T) {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String("us-east-1"),
		Credentials: credentials.NewStaticCredentials("AKIDEXAMPLE", "secret", ""),
	}))
	s := NewS3StorageWithClient(s3.New(sess))

	u, err := s.Locate(context.Background(), "s3://media/raw/a.mp4")
	require.NoError(t, err)
	assert.Contains(t, u, "raw/a.mp4")
	assert.Contains(t, u, "X-Amz-Signature=")
}

func TestMuxRouting(t *testing.T) {
	local := newLocal(t)
	m := &Mux{Local: local}
	ctx := context.Background()

	p, err := m.Locate(ctx, "file://clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(local.Root, "clip.mp4"), p)

	u, err := m.Locate(ctx, "https://cdn.example.com/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp4", u)

	_, err = m.Open(ctx, "https://cdn.example.com/a.mp4")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	_, err = m.Open(ctx, "s3://media/a.mp4")
	assert.ErrorIs(t, err, ErrUnsupportedScheme, "no s3 backend configured")
	_, err = m.Locate(ctx, "ftp://host/a.mp4")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestHTTPOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logo.png":
			w.Write([]byte("png bytes"))
		case "/big.png":
			w.Header().Set("Content-Length", "1024")
			w.Write(make([]byte, 1024))
		case "/down.png":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := &Mux{HTTP: NewHTTPStorage(5 * time.Second)}
	ctx := context.Background()

	rc, err := m.Open(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "png bytes", string(data))

	_, err = m.Open(ctx, srv.URL+"/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Open(ctx, srv.URL+"/down.png")
	assert.ErrorContains(t, err, "status 502")

	m.HTTP.MaxBytes = 100
	_, err = m.Open(ctx, srv.URL+"/big.png")
	assert.ErrorContains(t, err, "limit")

	u, err := m.Locate(ctx, srv.URL+"/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/a.mp4", u)
}
