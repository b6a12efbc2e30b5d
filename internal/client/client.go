// Package client uploads files through the issuing endpoint: it asks the
// service for a presigned URL and then PUTs the bytes straight to storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// File is the upload source. Size must match the number of bytes Body yields.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Close closes Body if it is closable.
func (f *File) Close() error {
	if c, ok := f.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Options configures a single Upload call.
type Options struct {
	// HandleUploadURL is the issuing endpoint, e.g.
	// "https://api.example.com/api/v1/uploads".
	HandleUploadURL string
	// Header is added to the issuing request only, never to the storage PUT.
	Header http.Header
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Result carries the public URL of the uploaded object.
type Result struct {
	URL string
}

// UploadError is returned for any refusal by the endpoint or storage.
type UploadError struct {
	Message string
	// StatusCode is the HTTP status that caused the failure, 0 for transport
	// errors.
	StatusCode int
	// Details is the endpoint's "details" payload when it sent one.
	Details json.RawMessage
	Err     error
}

func (e *UploadError) Error() string { return "Error uploading file: " + e.Message }

func (e *UploadError) Unwrap() error { return e.Err }

type issueRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type issueResponse struct {
	UploadURL string `json:"uploadUrl"`
	ResultURL string `json:"resultUrl"`
}

type errorResponse struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

// Upload requests an upload URL for f and PUTs its bytes there. There are
// no retries.
func Upload(ctx context.Context, f *File, opts Options) (*Result, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	issued, err := issue(ctx, hc, f, opts)
	if err != nil {
		return nil, err
	}

	if err := put(ctx, hc, f, issued.UploadURL); err != nil {
		return nil, err
	}

	return &Result{URL: issued.ResultURL}, nil
}

func issue(ctx context.Context, hc *http.Client, f *File, opts Options) (*issueResponse, error) {
	payload, err := json.Marshal(issueRequest{Filename: f.Name, ContentType: f.ContentType, Size: f.Size})
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.HandleUploadURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &UploadError{Message: body.Error, StatusCode: resp.StatusCode, Details: body.Details}
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UploadError{Message: fmt.Sprintf("decode upload URL response: %v", err), StatusCode: resp.StatusCode, Err: err}
	}
	if out.UploadURL == "" || out.ResultURL == "" {
		return nil, &UploadError{Message: "incomplete upload URL response", StatusCode: resp.StatusCode}
	}
	return &out, nil
}

func put(ctx context.Context, hc *http.Client, f *File, uploadURL string) error {
	body := f.Body
	if f.Size == 0 || body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return &UploadError{Message: err.Error(), Err: err}
	}
	req.ContentLength = f.Size
	req.Header.Set("Content-Type", f.ContentType)

	resp, err := hc.Do(req)
	if err != nil {
		return &UploadError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UploadError{Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
	}
	return nil
}

// OpenFile opens the file at path for upload. The content type comes from
// the extension, falling back to sniffing the first 512 bytes. The caller
// must Close the returned File.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	if !st.Mode().IsRegular() {
		fh.Close()
		return nil, fmt.Errorf("%s: not a regular file", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType, err = sniff(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
	}

	return &File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        st.Size(),
		Body:        fh,
	}, nil
}

func sniff(rs io.ReadSeeker) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(rs, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
