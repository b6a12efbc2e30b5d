package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ ObjectClient      = (*MinioClient)(nil)
	_ BucketInitializer = (*MinioClient)(nil)
)

// MinioClient implements ObjectClient on top of minio-go, which speaks to
// MinIO, AWS S3 and any other S3-compatible provider.
type MinioClient struct {
	client *minio.Client
}

// NewMinioClient creates a client for conn. No network call is made.
func NewMinioClient(conn Connection) (*MinioClient, error) {
	client, err := minio.New(conn.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conn.AccessKey, conn.SecretKey, ""),
		Secure: conn.UseSSL,
		Region: conn.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioClient{client: client}, nil
}

// Put streams body to key. size may be -1, in which case minio-go falls back
// to a multipart upload.
func (m *MinioClient) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (PutInfo, error) {
	info, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{})
	if err != nil {
		return PutInfo{}, mapMinioError(err)
	}
	return PutInfo{
		ETag:       info.ETag,
		Expiration: info.Expiration,
		VersionID:  info.VersionID,
		Checksum:   info.ChecksumSHA1,
	}, nil
}

func (m *MinioClient) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapMinioError(err)
	}
	return ObjectInfo{Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

// Get returns the object stream. GetObject is lazy, so Stat is called first
// to surface a missing key before any bytes are read.
func (m *MinioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioError(err)
	}
	return obj, nil
}

func (m *MinioClient) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(err)
	}
	return nil
}

func (m *MinioClient) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", mapMinioError(err)
	}
	return u.String(), nil
}

func (m *MinioClient) PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedPutObject(ctx, bucket, key, expiry)
	if err != nil {
		return "", mapMinioError(err)
	}
	return u.String(), nil
}

// EnsureBucket creates bucket when it does not exist and, if publicRead is
// set, attaches an anonymous s3:GetObject policy.
func (m *MinioClient) EnsureBucket(ctx context.Context, bucket string, publicRead bool) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", mapMinioError(err))
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, mapMinioError(err))
		}
	}
	if !publicRead {
		return nil
	}
	if err := m.client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return fmt.Errorf("set bucket policy: %w", mapMinioError(err))
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}

// mapMinioError translates S3 error responses into the package sentinels,
// keeping the original error in the chain.
func mapMinioError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case "AccessDenied":
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		if resp.Code == "NoSuchBucket" {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return err
}
