// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/bucketgate/service/internal/storage"
	"github.com/bucketgate/service/internal/upload"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	// JWTSecret enables bearer authentication on the upload endpoint when set.
	JWTSecret   string
	CORSOrigins []string

	// Bucket is where uploads land, e.g. MinIO locally and S3 or GCS in
	// production.
	Bucket storage.Bucket
	Upload upload.Policy

	// OTLPEndpoint is the collector address; tracing is off when empty.
	OTLPEndpoint string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	useSSL, err := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	if err != nil {
		return nil, fmt.Errorf("STORAGE_USE_SSL: %w", err)
	}

	maxSize, err := strconv.ParseInt(getEnv("UPLOAD_MAX_SIZE_BYTES", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("UPLOAD_MAX_SIZE_BYTES: %w", err)
	}
	if maxSize < 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_SIZE_BYTES: must not be negative, got %d", maxSize)
	}

	bucket := getEnv("STORAGE_BUCKET", "uploads")
	endpoint := getEnv("STORAGE_ENDPOINT", "localhost:9000")

	return &Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		Bucket: storage.Bucket{
			Connection: storage.Connection{
				Provider:        getEnv("STORAGE_PROVIDER", storage.ProviderMinio),
				Endpoint:        endpoint,
				AccessKey:       getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
				SecretKey:       getEnv("STORAGE_SECRET_KEY", "minioadmin"),
				Region:          os.Getenv("STORAGE_REGION"),
				UseSSL:          useSSL,
				CredentialsFile: os.Getenv("STORAGE_CREDENTIALS_FILE"),
			},
			Name:      bucket,
			PublicURL: getEnv("STORAGE_PUBLIC_URL", "http://"+endpoint+"/"+bucket),
		},
		Upload: upload.Policy{
			PathPrefix:          os.Getenv("UPLOAD_PATH_PREFIX"),
			MaxSizeInBytes:      maxSize,
			AllowedContentTypes: splitList(os.Getenv("UPLOAD_ALLOWED_CONTENT_TYPES")),
		},

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
