// Package storagetest provides an in-memory object store for tests. Its
// presigned URLs point at an httptest.Server that honours GET and PUT, so
// direct uploads can be exercised end to end.
package storagetest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bucketgate/service/internal/storage"
)

// Object is a stored object as seen by tests.
type Object struct {
	Data        []byte
	ContentType string
	ETag        string
	Version     int
}

// Server is an in-memory bucket store with an HTTP front end for presigned
// requests.
type Server struct {
	mu      sync.Mutex
	objects map[string]Object
	buckets map[string]bool
	version int
	err     error
	dials   int

	secret []byte
	srv    *httptest.Server
}

// NewServer starts a Server that is shut down when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		objects: make(map[string]Object),
		buckets: make(map[string]bool),
		secret:  []byte("storagetest-secret"),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.srv.Close)
	return s
}

// Dial satisfies storage.Dialer.
func (s *Server) Dial(_ context.Context, _ storage.Connection) (storage.ObjectClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	return &client{s: s}, nil
}

// Dials reports how many clients have been handed out.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// URL is the base URL of the HTTP front end.
func (s *Server) URL() string { return s.srv.URL }

// FailWith makes every subsequent client call return err. Pass nil to
// recover.
func (s *Server) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Object returns the object stored under bucket/key.
func (s *Server) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	return o, ok
}

// Bucket reports whether EnsureBucket created name and whether it was made
// publicly readable.
func (s *Server) Bucket(name string) (publicRead, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	publicRead, ok = s.buckets[name]
	return publicRead, ok
}

// Store writes an object directly, bypassing the client.
func (s *Server) Store(bucket, key string, data []byte, contentType string) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(bucket, key, data, contentType)
}

func (s *Server) storeLocked(bucket, key string, data []byte, contentType string) Object {
	s.version++
	sum := md5.Sum(data)
	o := Object{
		Data:        bytes.Clone(data),
		ContentType: contentType,
		ETag:        hex.EncodeToString(sum[:]),
		Version:     s.version,
	}
	s.objects[bucket+"/"+key] = o
	return o
}

func (s *Server) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Server) presign(method, bucket, key string, expiry time.Duration) string {
	expires := strconv.FormatInt(time.Now().Add(expiry).Unix(), 10)
	q := url.Values{}
	q.Set("X-Method", method)
	q.Set("X-Expires", expires)
	q.Set("X-Signature", s.signature(method, bucket, key, expires))
	return fmt.Sprintf("%s/%s/%s?%s", s.srv.URL, bucket, key, q.Encode())
}

func (s *Server) signature(method, bucket, key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(method + "\n" + bucket + "\n" + key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if !ok || key == "" {
		http.Error(w, "bad object path", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	expires := q.Get("X-Expires")
	want := s.signature(r.Method, bucket, key, expires)
	if q.Get("X-Method") != r.Method || !hmac.Equal([]byte(q.Get("X-Signature")), []byte(want)) {
		http.Error(w, "signature does not match", http.StatusForbidden)
		return
	}
	if exp, err := strconv.ParseInt(expires, 10, 64); err != nil || time.Now().Unix() > exp {
		http.Error(w, "request has expired", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		o := s.Store(bucket, key, data, r.Header.Get("Content-Type"))
		w.Header().Set("ETag", `"`+o.ETag+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		o, found := s.Object(bucket, key)
		if !found {
			http.Error(w, "NoSuchKey", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", o.ContentType)
		_, _ = w.Write(o.Data)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type client struct {
	s *Server
}

func (c *client) Put(_ context.Context, bucket, key string, body io.Reader, _ int64) (storage.PutInfo, error) {
	if err := c.s.fail(); err != nil {
		return storage.PutInfo{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.PutInfo{}, err
	}
	o := c.s.Store(bucket, key, data, "application/octet-stream")
	return storage.PutInfo{ETag: o.ETag, VersionID: strconv.Itoa(o.Version)}, nil
}

func (c *client) Head(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	if err := c.s.fail(); err != nil {
		return storage.ObjectInfo{}, err
	}
	o, ok := c.s.Object(bucket, key)
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return storage.ObjectInfo{Size: int64(len(o.Data)), ContentType: o.ContentType, ETag: o.ETag}, nil
}

func (c *client) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := c.s.fail(); err != nil {
		return nil, err
	}
	o, ok := c.s.Object(bucket, key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.Data)), nil
}

func (c *client) Delete(_ context.Context, bucket, key string) error {
	if err := c.s.fail(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.objects[bucket+"/"+key]; !ok {
		return storage.ErrNotFound
	}
	delete(c.s.objects, bucket+"/"+key)
	return nil
}

func (c *client) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if err := c.s.fail(); err != nil {
		return "", err
	}
	return c.s.presign(http.MethodGet, bucket, key, expiry), nil
}

func (c *client) PresignPut(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if err := c.s.fail(); err != nil {
		return "", err
	}
	return c.s.presign(http.MethodPut, bucket, key, expiry), nil
}

func (c *client) EnsureBucket(_ context.Context, bucket string, publicRead bool) error {
	if err := c.s.fail(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.buckets[bucket] = c.s.buckets[bucket] || publicRead
	return nil
}
