package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/bucketgate/service/internal/middleware"
	"github.com/bucketgate/service/internal/response"
	"github.com/bucketgate/service/internal/storage"
)

// URLExpiry is how long an issued upload URL stays valid.
const URLExpiry = 3600 * time.Second

// maxBodyBytes bounds the request body; a valid request is tiny.
const maxBodyBytes = 64 << 10

var tracer = otel.Tracer("github.com/bucketgate/service/internal/upload")

// Presigner mints write URLs. *storage.Gateway satisfies it.
type Presigner interface {
	GetSecureUploadURL(ctx context.Context, b storage.Bucket, path string, opts storage.SignOptions) (string, error)
}

// Response is returned to the client on success.
type Response struct {
	UploadURL string `json:"uploadUrl" example:"https://s3.example.com/uploads/k3v...?X-Amz-Signature=..."`
	ResultURL string `json:"resultUrl" example:"https://cdn.example.com/images/k3v9x0c2m1q8r7t6y5u4i3o2p1a0s9d8"`
}

// Handler is the upload issuing endpoint. It keeps no state between
// requests and may serve any number of them concurrently.
type Handler struct {
	presigner Presigner
	bucket    storage.Bucket
	policy    Policy
	logger    *zap.Logger
}

// NewHandler creates a Handler that issues URLs for bucket under policy.
func NewHandler(presigner Presigner, bucket storage.Bucket, policy Policy, logger *zap.Logger) *Handler {
	return &Handler{
		presigner: presigner,
		bucket:    bucket,
		policy:    policy,
		logger:    logger,
	}
}

// ServeHTTP godoc
//
//	@Summary		Request an upload URL
//	@Description	Validates the declared file, applies the size and content type policy, and returns a presigned PUT URL valid for one hour together with the public URL the object will be served from.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		Request	true	"File to upload"
//	@Success		200		{object}	Response
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		401		{object}	response.ErrorBody
//	@Failure		500		{object}	response.ErrorBody
//	@Router			/uploads [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload.Issue")
	defer span.End()

	logger := h.logger.With(zap.String("request_id", middleware.RequestID(ctx)))
	if sub, ok := middleware.Subject(ctx); ok {
		logger = logger.With(zap.String("subject", sub))
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("unreadable upload request body", zap.Error(err))
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	req, verr := DecodeRequest(body)
	if verr != nil {
		logger.Warn("invalid upload request body", zap.Error(verr))
		response.BadRequest(w, "Invalid request body", verr)
		return
	}

	span.SetAttributes(
		attribute.String("upload.content_type", req.ContentType),
		attribute.Float64("upload.size", req.Size),
	)

	res, err := h.Issue(ctx, req)
	if err != nil {
		var violation *PolicyViolation
		if errors.As(err, &violation) {
			logger.Info("upload refused by policy",
				zap.String("reason", violation.Reason),
				zap.String("content_type", req.ContentType),
				zap.Float64("size", req.Size),
			)
			response.BadRequest(w, violation.Reason, nil)
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to issue upload URL", zap.Error(err))
		response.InternalError(w)
		return
	}

	response.OK(w, res)
}

// Issue applies the policy to req and, if it passes, mints an upload URL for
// a freshly generated path. Policy refusals are returned as *PolicyViolation.
func (h *Handler) Issue(ctx context.Context, req Request) (*Response, error) {
	if err := h.policy.Check(req); err != nil {
		return nil, err
	}

	path, err := h.policy.NewPath()
	if err != nil {
		return nil, fmt.Errorf("generate object path: %w", err)
	}

	uploadURL, err := h.presigner.GetSecureUploadURL(ctx, h.bucket, path, storage.SignOptions{ExpiresIn: URLExpiry})
	if err != nil {
		return nil, fmt.Errorf("presign upload for %q: %w", path, err)
	}

	return &Response{
		UploadURL: uploadURL,
		ResultURL: h.bucket.ObjectURL(path),
	}, nil
}
