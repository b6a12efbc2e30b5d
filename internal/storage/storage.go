// Package storage is a thin gateway over S3-compatible and Google Cloud
// object storage. Every operation takes a Bucket descriptor explicitly; the
// low-level client is obtained through a Dialer on each call, so swapping
// providers (MinIO, AWS S3, ArvanCloud, GCS) is a matter of configuration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Supported values for Connection.Provider.
const (
	ProviderMinio = "minio"
	ProviderGCS   = "gcs"
)

// DefaultExpiry is the lifetime of presigned URLs when none is requested.
const DefaultExpiry = 3600 * time.Second

// Provider errors are mapped onto these so callers can tell failures apart.
var (
	ErrNotFound     = errors.New("storage: object not found")
	ErrAccessDenied = errors.New("storage: access denied")
	ErrUnsupported  = errors.New("storage: operation not supported by provider")
)

// Connection describes how to reach the storage service.
type Connection struct {
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// CredentialsFile is a service account JSON file, GCS only.
	CredentialsFile string
}

// Bucket is a named container plus the connection used to reach it and the
// public base URL its objects are served from, e.g. "cdn.example.com/files".
type Bucket struct {
	Connection Connection
	Name       string
	PublicURL  string
}

// ObjectURL returns the browser-accessible URL for path. A PublicURL without
// a scheme is served over https.
func (b Bucket) ObjectURL(path string) string {
	base := b.PublicURL
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// PutInfo is what the storage service reports after a write. Fields the
// provider does not report are left zero.
type PutInfo struct {
	ETag       string
	Expiration time.Time
	VersionID  string
	Checksum   string
}

// ObjectInfo is the subset of object metadata the gateway relies on.
type ObjectInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

// ObjectClient is the capability set the gateway needs from a provider SDK.
// Implementations return ErrNotFound (possibly wrapped) for missing objects.
type ObjectClient interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (PutInfo, error)
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// BucketInitializer is implemented by clients able to create a bucket.
type BucketInitializer interface {
	EnsureBucket(ctx context.Context, bucket string, publicRead bool) error
}

// Dialer builds an ObjectClient for a connection.
type Dialer func(ctx context.Context, conn Connection) (ObjectClient, error)

// Dial is the default Dialer. It selects the provider SDK from
// conn.Provider; an empty provider means MinIO/S3.
func Dial(ctx context.Context, conn Connection) (ObjectClient, error) {
	switch strings.ToLower(conn.Provider) {
	case "", ProviderMinio, "s3":
		return NewMinioClient(conn)
	case ProviderGCS:
		return NewGCSClient(ctx, conn)
	default:
		return nil, fmt.Errorf("storage: unknown provider %q", conn.Provider)
	}
}

// StorageError is returned for any failure of the underlying service other
// than a missing object on the operations that tolerate one.
type StorageError struct {
	Op     string
	Bucket string
	Path   string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s/%s: %v", e.Op, e.Bucket, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
