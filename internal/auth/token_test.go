package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketgate/service/internal/middleware"
)

func TestIssueTokenIsAcceptedByRequireAuth(t *testing.T) {
	token, err := IssueToken("secret", "ci-uploader", time.Hour)
	require.NoError(t, err)

	var subject string
	h := middleware.RequireAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = middleware.Subject(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ci-uploader", subject)
}

func TestIssueTokenDefaults(t *testing.T) {
	token, err := IssueToken("secret", "x", 0)
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)

	_, err = IssueToken("", "x", time.Hour)
	assert.Error(t, err)
}
