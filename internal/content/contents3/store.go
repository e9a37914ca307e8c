package contents3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/k11v/brickview/internal/content"
)

// Part sizes should be greater than or equal 5MB.
// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
const (
	uploadPartSize   = 10 * 1024 * 1024 // 10MB
	downloadPartSize = 10 * 1024 * 1024 // 10MB
)

// Store fetches artifacts from S3-compatible object storage.
type Store struct {
	client *s3.Client // required
	bucket string     // required
}

func New(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Fetch downloads the object ref points to.
// ref is either a key in the store's bucket or an s3://bucket/key URL.
func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := s.location(ref)
	if err != nil {
		return nil, fmt.Errorf("contents3.Store: %w", err)
	}

	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		d.PartSize = downloadPartSize
	})

	buf := manager.NewWriteAtBuffer(nil)
	_, err = downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("contents3.Store: %s: %w", ref, content.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("contents3.Store: %s: %w", ref, err)
	}

	return buf.Bytes(), nil
}

// Put uploads r under ref and waits for the object to exist.
// It returns the s3:// URL of the object.
func (s *Store) Put(ctx context.Context, ref string, r io.Reader) (string, error) {
	bucket, key, err := s.location(ref)
	if err != nil {
		return "", fmt.Errorf("contents3.Store: %w", err)
	}

	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        r,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			err = errors.Join(content.ErrTooLarge, err)
		}
		return "", fmt.Errorf("contents3.Store: %s: %w", ref, err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, time.Minute)
	if err != nil {
		return "", fmt.Errorf("contents3.Store: %s: %w", ref, err)
	}

	return "s3://" + bucket + "/" + key, nil
}

func (s *Store) location(ref string) (bucket string, key string, err error) {
	if !strings.HasPrefix(ref, "s3://") {
		key = strings.TrimPrefix(ref, "/")
		if key == "" {
			return "", "", errors.New("empty reference")
		}
		return s.bucket, key, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%s: want s3://bucket/key", ref)
	}
	return u.Host, key, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if noSuchKey := (*types.NoSuchKey)(nil); errors.As(err, &noSuchKey) {
		return true
	}
	if notFound := (*types.NotFound)(nil); errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}
