package storage

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var _ ObjectClient = (*GCSClient)(nil)

// GCSClient implements ObjectClient for Google Cloud Storage. Presigning
// requires credentials able to sign, such as a service account key.
type GCSClient struct {
	client *gcs.Client
}

// NewGCSClient creates a client for conn. A non-empty Endpoint overrides the
// default API host, which is how emulators are targeted.
func NewGCSClient(ctx context.Context, conn Connection) (*GCSClient, error) {
	var opts []option.ClientOption
	if conn.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conn.CredentialsFile))
	}
	if conn.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(conn.Endpoint))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Put writes body to key. GCS does not need the size up front. If body
// fails, the upload is aborted and the existing object is left untouched.
func (g *GCSClient) Put(ctx context.Context, bucket, key string, body io.Reader, _ int64) (PutInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)

	if _, err := io.Copy(w, body); err != nil {
		// Cancelling before Close aborts the upload instead of committing it.
		cancel()
		_ = w.Close()
		return PutInfo{}, mapGCSError(err)
	}
	if err := w.Close(); err != nil {
		return PutInfo{}, mapGCSError(err)
	}

	attrs := w.Attrs()
	if attrs == nil {
		return PutInfo{}, nil
	}
	return PutInfo{
		ETag:       attrs.Etag,
		Expiration: attrs.RetentionExpirationTime,
		VersionID:  strconv.FormatInt(attrs.Generation, 10),
		Checksum:   crc32cString(attrs.CRC32C),
	}, nil
}

func (g *GCSClient) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := g.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, mapGCSError(err)
	}
	return ObjectInfo{Size: attrs.Size, ContentType: attrs.ContentType, ETag: attrs.Etag}, nil
}

func (g *GCSClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError(err)
	}
	return r, nil
}

func (g *GCSClient) Delete(ctx context.Context, bucket, key string) error {
	if err := g.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return mapGCSError(err)
	}
	return nil
}

func (g *GCSClient) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return g.sign(bucket, key, http.MethodGet, expiry)
}

func (g *GCSClient) PresignPut(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return g.sign(bucket, key, http.MethodPut, expiry)
}

// Close releases the underlying transport.
func (g *GCSClient) Close() error {
	return g.client.Close()
}

func (g *GCSClient) sign(bucket, key, method string, expiry time.Duration) (string, error) {
	u, err := g.client.Bucket(bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  method,
		Expires: time.Now().Add(expiry),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign %s URL: %w", method, mapGCSError(err))
	}
	return u, nil
}

func mapGCSError(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	return err
}

// crc32cString renders a CRC32C the way GCS reports it: base64 of the
// big-endian bytes.
func crc32cString(sum uint32) string {
	if sum == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(binary.BigEndian.AppendUint32(nil, sum))
}
