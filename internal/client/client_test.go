package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bucketgate/service/internal/storage"
	"github.com/bucketgate/service/internal/storage/storagetest"
	"github.com/bucketgate/service/internal/upload"
)

type endToEnd struct {
	store    *storagetest.Server
	endpoint *httptest.Server
	bucket   storage.Bucket
}

func newEndToEnd(t *testing.T, policy upload.Policy) *endToEnd {
	t.Helper()
	store := storagetest.NewServer(t)
	bucket := storage.Bucket{Name: "uploads", PublicURL: store.URL() + "/uploads"}

	h := upload.NewHandler(storage.NewGateway(store.Dial), bucket, policy, zap.NewNop())
	endpoint := httptest.NewServer(h)
	t.Cleanup(endpoint.Close)

	return &endToEnd{store: store, endpoint: endpoint, bucket: bucket}
}

func memFile(name, contentType string, data []byte) *File {
	return &File{Name: name, ContentType: contentType, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func TestUploadEndToEnd(t *testing.T) {
	e := newEndToEnd(t, upload.Policy{PathPrefix: "images/", MaxSizeInBytes: 1 << 20})
	data := []byte("\x89PNG\r\n\x1a\nnot really a png")

	res, err := Upload(t.Context(), memFile("a.png", "image/png", data), Options{HandleUploadURL: e.endpoint.URL})
	require.NoError(t, err)

	key, ok := strings.CutPrefix(res.URL, e.store.URL()+"/uploads/")
	require.True(t, ok, res.URL)
	assert.True(t, strings.HasPrefix(key, "images/"))

	obj, found := e.store.Object("uploads", key)
	require.True(t, found)
	assert.Equal(t, data, obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)

	exists, err := storage.NewGateway(e.store.Dial).Exists(t.Context(), e.bucket, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUploadRefusedByPolicy(t *testing.T) {
	e := newEndToEnd(t, upload.Policy{MaxSizeInBytes: 500})

	_, err := Upload(t.Context(), memFile("a.png", "image/png", make([]byte, 1000)), Options{HandleUploadURL: e.endpoint.URL})
	require.Error(t, err)
	assert.EqualError(t, err, "Error uploading file: File too large")

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusBadRequest, uerr.StatusCode)
	assert.Zero(t, e.store.Dials())
}

func TestUploadCarriesValidationDetails(t *testing.T) {
	e := newEndToEnd(t, upload.Policy{})

	_, err := Upload(t.Context(), memFile("", "image/png", []byte("x")), Options{HandleUploadURL: e.endpoint.URL})

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "Error uploading file: Invalid request body", uerr.Error())

	var details map[string]any
	require.NoError(t, json.Unmarshal(uerr.Details, &details))
	assert.Contains(t, details, "filename")
}

func TestUploadForwardsHeadersToEndpointOnly(t *testing.T) {
	var stored []byte
	storageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(7), r.ContentLength)
		stored, _ = io.ReadAll(r.Body)
	}))
	defer storageSrv.Close()

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"filename": "a.csv", "contentType": "text/csv", "size": float64(7)}, body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": storageSrv.URL + "/obj",
			"resultUrl": "https://cdn.example.com/obj",
		})
	}))
	defer endpoint.Close()

	res, err := Upload(t.Context(), memFile("a.csv", "text/csv", []byte("a,b,c\n1")), Options{
		HandleUploadURL: endpoint.URL,
		Header:          http.Header{"Authorization": {"Bearer token"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/obj", res.URL)
	assert.Equal(t, "a,b,c\n1", string(stored))
}

func TestUploadStorageRejection(t *testing.T) {
	storageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", http.StatusForbidden)
	}))
	defer storageSrv.Close()

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"uploadUrl": storageSrv.URL + "/x", "resultUrl": "https://cdn/x"})
	}))
	defer endpoint.Close()

	_, err := Upload(t.Context(), memFile("a", "b/c", []byte("data")), Options{HandleUploadURL: endpoint.URL})
	assert.EqualError(t, err, "Error uploading file: Forbidden")
}

func TestUploadEndpointWithoutJSONError(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer endpoint.Close()

	_, err := Upload(t.Context(), memFile("a", "b/c", []byte("data")), Options{HandleUploadURL: endpoint.URL})
	assert.EqualError(t, err, "Error uploading file: Bad Gateway")
}

func TestUploadUnreachableEndpoint(t *testing.T) {
	endpoint := httptest.NewServer(http.NotFoundHandler())
	url := endpoint.URL
	endpoint.Close()

	_, err := Upload(t.Context(), memFile("a", "b/c", []byte("data")), Options{HandleUploadURL: url})

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Zero(t, uerr.StatusCode)
	assert.NotNil(t, uerr.Unwrap())
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()

	png := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(png, []byte("pretend"), 0o600))
	f, err := OpenFile(png)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "photo.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Equal(t, int64(7), f.Size)

	plain := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(plain, []byte("hello world"), 0o600))
	g, err := OpenFile(plain)
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, "text/plain; charset=utf-8", g.ContentType)

	data, err := io.ReadAll(g.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data), "sniffing must not consume the body")

	_, err = OpenFile(dir)
	assert.Error(t, err)
	_, err = OpenFile(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
