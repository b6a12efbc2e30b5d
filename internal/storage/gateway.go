package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/bucketgate/service/internal/storage")

// Gateway runs single storage operations against a Bucket. It holds no
// per-bucket state and is safe for concurrent use.
type Gateway struct {
	dial Dialer
}

// NewGateway returns a Gateway that obtains clients from dial. A nil dial
// uses Dial.
func NewGateway(dial Dialer) *Gateway {
	if dial == nil {
		dial = Dial
	}
	return &Gateway{dial: dial}
}

// PutResult describes a completed write.
type PutResult struct {
	URL        string    `json:"url"`
	ETag       string    `json:"etag,omitempty"`
	Expiration time.Time `json:"expiration,omitzero"`
	VersionID  string    `json:"versionId,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
}

// SignOptions controls presigned URL generation.
type SignOptions struct {
	// ExpiresIn is the URL lifetime. Zero means DefaultExpiry.
	ExpiresIn time.Duration
}

func (o SignOptions) expiry() time.Duration {
	if o.ExpiresIn <= 0 {
		return DefaultExpiry
	}
	return o.ExpiresIn
}

// Put writes body to path, replacing any existing object.
func (g *Gateway) Put(ctx context.Context, b Bucket, path string, body io.Reader) (_ *PutResult, err error) {
	ctx, span := g.start(ctx, "Put", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "put", path)
	if err != nil {
		return nil, err
	}
	defer release(c)

	info, err := c.Put(ctx, b.Name, path, body, sizeOf(body))
	if err != nil {
		return nil, wrap("put", b, path, err)
	}

	return &PutResult{
		URL:        b.ObjectURL(path),
		ETag:       info.ETag,
		Expiration: info.Expiration,
		VersionID:  info.VersionID,
		Checksum:   info.Checksum,
	}, nil
}

// PutBytes is Put for an in-memory payload.
func (g *Gateway) PutBytes(ctx context.Context, b Bucket, path string, data []byte) (*PutResult, error) {
	return g.Put(ctx, b, path, bytes.NewReader(data))
}

// PutString is Put for a string payload.
func (g *Gateway) PutString(ctx context.Context, b Bucket, path, data string) (*PutResult, error) {
	return g.Put(ctx, b, path, strings.NewReader(data))
}

// Exists reports whether an object is stored at path. A missing object is
// not an error.
func (g *Gateway) Exists(ctx context.Context, b Bucket, path string) (_ bool, err error) {
	ctx, span := g.start(ctx, "Exists", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "head", path)
	if err != nil {
		return false, err
	}
	defer release(c)

	if _, err := c.Head(ctx, b.Name, path); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, wrap("head", b, path, err)
	}
	return true, nil
}

// Get returns the full contents of the object at path, or nil without an
// error when the object does not exist.
func (g *Gateway) Get(ctx context.Context, b Bucket, path string) (_ []byte, err error) {
	ctx, span := g.start(ctx, "Get", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "get", path)
	if err != nil {
		return nil, err
	}
	defer release(c)

	rc, err := c.Get(ctx, b.Name, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, wrap("get", b, path, err)
	}
	if rc == nil {
		return nil, nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, wrap("get", b, path, err)
	}
	return data, nil
}

// GetStreamed returns a single-pass stream over the object at path. The
// caller must close it. Unlike Get, a missing object is reported as a
// *StorageError wrapping ErrNotFound.
func (g *Gateway) GetStreamed(ctx context.Context, b Bucket, path string) (_ io.ReadCloser, err error) {
	ctx, span := g.start(ctx, "GetStreamed", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "get", path)
	if err != nil {
		return nil, err
	}

	rc, err := c.Get(ctx, b.Name, path)
	if err != nil {
		release(c)
		return nil, wrap("get", b, path, err)
	}
	if rc == nil {
		release(c)
		return nil, nil
	}

	if closer, ok := c.(io.Closer); ok {
		return &stream{ReadCloser: rc, client: closer}, nil
	}
	return rc, nil
}

// DeleteFile removes the object at path. Deleting a missing object succeeds.
func (g *Gateway) DeleteFile(ctx context.Context, b Bucket, path string) (err error) {
	ctx, span := g.start(ctx, "DeleteFile", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "delete", path)
	if err != nil {
		return err
	}
	defer release(c)

	if err := c.Delete(ctx, b.Name, path); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return wrap("delete", b, path, err)
	}
	return nil
}

// GetSignedURL returns a URL that allows reading path until it expires.
func (g *Gateway) GetSignedURL(ctx context.Context, b Bucket, path string, opts SignOptions) (_ string, err error) {
	ctx, span := g.start(ctx, "GetSignedURL", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "presign-get", path)
	if err != nil {
		return "", err
	}
	defer release(c)

	u, err := c.PresignGet(ctx, b.Name, path, opts.expiry())
	if err != nil {
		return "", wrap("presign-get", b, path, err)
	}
	return u, nil
}

// GetSecureUploadURL returns a URL that allows a single create or overwrite
// of path until it expires.
func (g *Gateway) GetSecureUploadURL(ctx context.Context, b Bucket, path string, opts SignOptions) (_ string, err error) {
	ctx, span := g.start(ctx, "GetSecureUploadURL", b, path)
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "presign-put", path)
	if err != nil {
		return "", err
	}
	defer release(c)

	u, err := c.PresignPut(ctx, b.Name, path, opts.expiry())
	if err != nil {
		return "", wrap("presign-put", b, path, err)
	}
	return u, nil
}

// EnsureBucket creates the bucket if it is missing, optionally granting
// anonymous read access so ObjectURL links resolve.
func (g *Gateway) EnsureBucket(ctx context.Context, b Bucket, publicRead bool) (err error) {
	ctx, span := g.start(ctx, "EnsureBucket", b, "")
	defer func() { end(span, err) }()

	c, err := g.client(ctx, b, "ensure-bucket", "")
	if err != nil {
		return err
	}
	defer release(c)

	bi, ok := c.(BucketInitializer)
	if !ok {
		return wrap("ensure-bucket", b, "", ErrUnsupported)
	}
	if err := bi.EnsureBucket(ctx, b.Name, publicRead); err != nil {
		return wrap("ensure-bucket", b, "", err)
	}
	return nil
}

func (g *Gateway) client(ctx context.Context, b Bucket, op, path string) (ObjectClient, error) {
	c, err := g.dial(ctx, b.Connection)
	if err != nil {
		return nil, &StorageError{Op: op, Bucket: b.Name, Path: path, Err: err}
	}
	return c, nil
}

func (g *Gateway) start(ctx context.Context, op string, b Bucket, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "storage."+op, trace.WithAttributes(
		attribute.String("storage.provider", b.Connection.Provider),
		attribute.String("storage.bucket", b.Name),
		attribute.String("storage.path", path),
	))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func wrap(op string, b Bucket, path string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Bucket: b.Name, Path: path, Err: err}
}

func release(c ObjectClient) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}

// sizeOf returns the length of body when it can be known up front, or -1.
func sizeOf(body io.Reader) int64 {
	switch v := body.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil && fi.Mode().IsRegular() {
			return fi.Size()
		}
	}
	return -1
}

// stream keeps a per-call client open until the caller is done reading.
type stream struct {
	io.ReadCloser
	client io.Closer
}

func (s *stream) Close() error {
	err := s.ReadCloser.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
