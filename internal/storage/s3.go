package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// DefaultPresignTTL bounds how long a located S3 URL stays readable.
const DefaultPresignTTL = 15 * time.Minute

// S3Storage reads s3://bucket/key sources. The bucket comes from the URI.
type S3Storage struct {
	svc        s3iface.S3API
	PresignTTL time.Duration
}

// NewS3Storage uses the default AWS credential chain (env, shared config, role).
func NewS3Storage(region string) (*S3Storage, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3StorageWithClient(s3.New(sess)), nil
}

func NewS3StorageWithClient(svc s3iface.S3API) *S3Storage {
	return &S3Storage{svc: svc, PresignTTL: DefaultPresignTTL}
}

func parseS3(src string) (bucket, key string, err error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not s3://bucket/key", ErrUnsupportedScheme, src)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no object key", ErrUnsupportedScheme, src)
	}
	return u.Host, key, nil
}

func (s *S3Storage) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	bucket, key, err := parseS3(src)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(src, err)
	}
	return out.Body, nil
}

// Locate presigns a GET so ffmpeg can stream the object over https.
func (s *S3Storage) Locate(_ context.Context, src string) (string, error) {
	bucket, key, err := parseS3(src)
	if err != nil {
		return "", err
	}
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	ttl := s.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	u, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", src, err)
	}
	return u, nil
}

func s3Error(src string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
	}
	return fmt.Errorf("get %s: %w", src, err)
}
