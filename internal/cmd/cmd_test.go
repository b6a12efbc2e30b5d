package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/bucketgate/service/internal/storage"
	"github.com/bucketgate/service/internal/storage/storagetest"
	"github.com/bucketgate/service/internal/upload"
)

type harness struct {
	store *storagetest.Server
	out   *bytes.Buffer
	err   *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		store: storagetest.NewServer(t),
		out:   &bytes.Buffer{},
		err:   &bytes.Buffer{},
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	h.out.Reset()
	h.err.Reset()

	o := &BucketOptions{
		Bucket: storage.Bucket{Name: "media", PublicURL: "cdn.example.com"},
		Dial:   h.store.Dial,
		IOStreams: iooption.IOStreams{
			In:     strings.NewReader(stdin),
			Out:    h.out,
			ErrOut: h.err,
		},
	}
	cmd := NewRootCommandWithArgs(o)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(t.Context())
}

func TestPutFromStdinAndGet(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "hello", "put", "greetings/hello.txt"))
	assert.Contains(t, h.out.String(), `"url": "https://cdn.example.com/greetings/hello.txt"`)

	obj, ok := h.store.Object("media", "greetings/hello.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(obj.Data))

	require.NoError(t, h.run(t, "", "get", "greetings/hello.txt"))
	assert.Equal(t, "hello", h.out.String())

	require.NoError(t, h.run(t, "", "cat", "greetings/hello.txt"))
	assert.Equal(t, "hello", h.out.String())
}

func TestPutFromFileToOtherBucket(t *testing.T) {
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0o600))

	require.NoError(t, h.run(t, "", "put", "--bucket", "reports", "r.csv", src))
	obj, ok := h.store.Object("reports", "r.csv")
	require.True(t, ok)
	assert.Equal(t, "a,b\n", string(obj.Data))
}

func TestGetToFile(t *testing.T) {
	h := newHarness(t)
	h.store.Store("media", "k", []byte("payload"), "text/plain")
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, h.run(t, "", "get", "k", "--out", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestMissingObjects(t *testing.T) {
	h := newHarness(t)

	err := h.run(t, "", "get", "nope")
	assert.ErrorIs(t, err, errNotFound)

	err = h.run(t, "", "cat", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, h.run(t, "", "exists", "nope"))
	assert.Equal(t, "false\n", h.out.String())

	assert.ErrorIs(t, h.run(t, "", "exists", "-q", "nope"), errNotFound)

	require.NoError(t, h.run(t, "", "rm", "nope"))
}

func TestExistsAndRm(t *testing.T) {
	h := newHarness(t)
	h.store.Store("media", "a", []byte("1"), "")
	h.store.Store("media", "b", []byte("2"), "")

	require.NoError(t, h.run(t, "", "exists", "a"))
	assert.Equal(t, "true\n", h.out.String())

	require.NoError(t, h.run(t, "", "rm", "a", "b"))
	_, ok := h.store.Object("media", "a")
	assert.False(t, ok)
	_, ok = h.store.Object("media", "b")
	assert.False(t, ok)
}

func TestSignCommands(t *testing.T) {
	h := newHarness(t)
	h.store.Store("media", "doc.txt", []byte("signed"), "text/plain")

	require.NoError(t, h.run(t, "", "sign", "doc.txt", "--expires-in", "5m"))
	readURL := strings.TrimSpace(h.out.String())
	resp, err := http.Get(readURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, h.run(t, "", "sign-upload", "new.txt"))
	writeURL := strings.TrimSpace(h.out.String())
	req, err := http.NewRequest(http.MethodPut, writeURL, strings.NewReader("fresh"))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	obj, ok := h.store.Object("media", "new.txt")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(obj.Data))

	assert.Error(t, h.run(t, "", "sign", "doc.txt", "--expires-in", "0s"))
}

func TestInit(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "", "init", "--public-read"))
	assert.Equal(t, "bucket \"media\" ready\n", h.out.String())

	publicRead, ok := h.store.Bucket("media")
	assert.True(t, ok)
	assert.True(t, publicRead)
}

func TestBucketNameRequired(t *testing.T) {
	h := newHarness(t)
	assert.EqualError(t, h.run(t, "", "exists", "--bucket", "", "k"), "bucket name is required")
}

func TestUploadThroughService(t *testing.T) {
	h := newHarness(t)
	bucket := storage.Bucket{Name: "uploads", PublicURL: "cdn.example.com"}
	svc := httptest.NewServer(upload.NewHandler(storage.NewGateway(h.store.Dial), bucket, upload.Policy{MaxSizeInBytes: 16}, zap.NewNop()))
	defer svc.Close()

	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	require.NoError(t, os.WriteFile(small, []byte("tiny"), 0o600))

	require.NoError(t, h.run(t, "", "upload", small, "--url", svc.URL))
	url := strings.TrimSpace(h.out.String())
	key, ok := strings.CutPrefix(url, "https://cdn.example.com/")
	require.True(t, ok, url)

	obj, found := h.store.Object("uploads", key)
	require.True(t, found)
	assert.Equal(t, "tiny", string(obj.Data))
	assert.Equal(t, "image/png", obj.ContentType)

	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte{1}, 17), 0o600))
	err := h.run(t, "", "upload", big, "--url", svc.URL, "--content-type", "application/octet-stream")
	assert.EqualError(t, err, "Error uploading file: File too large")
}

func TestToken(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "", "token", "--jwt-secret", "s", "--subject", "ci"))
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(h.out.String()), "."))

	assert.EqualError(t, h.run(t, "", "token"), "jwt secret is required")
}
