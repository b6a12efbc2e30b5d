package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketgate/service/internal/storage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "LOG_LEVEL", "JWT_SECRET", "CORS_ALLOWED_ORIGINS",
		"STORAGE_PROVIDER", "STORAGE_ENDPOINT", "STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY",
		"STORAGE_REGION", "STORAGE_USE_SSL", "STORAGE_BUCKET", "STORAGE_PUBLIC_URL",
		"STORAGE_CREDENTIALS_FILE", "UPLOAD_PATH_PREFIX", "UPLOAD_MAX_SIZE_BYTES",
		"UPLOAD_ALLOWED_CONTENT_TYPES", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)

	assert.Equal(t, storage.ProviderMinio, cfg.Bucket.Connection.Provider)
	assert.Equal(t, "uploads", cfg.Bucket.Name)
	assert.Equal(t, "http://localhost:9000/uploads", cfg.Bucket.PublicURL)

	assert.Zero(t, cfg.Upload.MaxSizeInBytes)
	assert.Empty(t, cfg.Upload.AllowedContentTypes)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_PROVIDER", "gcs")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("STORAGE_BUCKET", "media")
	t.Setenv("STORAGE_PUBLIC_URL", "cdn.example.com")
	t.Setenv("UPLOAD_PATH_PREFIX", "images/")
	t.Setenv("UPLOAD_MAX_SIZE_BYTES", "5242880")
	t.Setenv("UPLOAD_ALLOWED_CONTENT_TYPES", "image/png, image/jpeg,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "gcs", cfg.Bucket.Connection.Provider)
	assert.True(t, cfg.Bucket.Connection.UseSSL)
	assert.Equal(t, "media", cfg.Bucket.Name)
	assert.Equal(t, "cdn.example.com", cfg.Bucket.PublicURL)
	assert.Equal(t, "images/", cfg.Upload.PathPrefix)
	assert.Equal(t, int64(5242880), cfg.Upload.MaxSizeInBytes)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Upload.AllowedContentTypes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"STORAGE_USE_SSL":       "maybe",
		"UPLOAD_MAX_SIZE_BYTES": "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}

	clearEnv(t)
	t.Setenv("UPLOAD_MAX_SIZE_BYTES", "5MB")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "UPLOAD_MAX_SIZE_BYTES")
}
