package upload

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	nameAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	nameLength   = 32
)

// Policy constrains which uploads get a write URL. Zero values disable a
// check.
type Policy struct {
	// PathPrefix is prepended verbatim to every generated object name.
	PathPrefix string
	// MaxSizeInBytes is the largest declared size accepted, inclusive.
	MaxSizeInBytes int64
	// AllowedContentTypes is compared case-insensitively.
	AllowedContentTypes []string
}

// PolicyViolation is returned when a well-formed request is refused by the
// configured Policy. Reason is safe to show to the caller.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string { return e.Reason }

// Check applies the policy to the sizes and types the client declared. The
// uploaded bytes themselves are never inspected.
func (p Policy) Check(req Request) error {
	if p.MaxSizeInBytes > 0 && req.Size > float64(p.MaxSizeInBytes) {
		return &PolicyViolation{Reason: "File too large"}
	}
	if len(p.AllowedContentTypes) > 0 && !p.allows(req.ContentType) {
		return &PolicyViolation{Reason: "File type \"" + req.ContentType + "\" not allowed"}
	}
	return nil
}

func (p Policy) allows(contentType string) bool {
	for _, t := range p.AllowedContentTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// NewPath returns the policy prefix followed by a fresh random name.
func (p Policy) NewPath() (string, error) {
	name, err := RandomName()
	if err != nil {
		return "", err
	}
	return p.PathPrefix + name, nil
}

// RandomName draws 32 characters uniformly from [0-9a-z] using crypto/rand.
func RandomName() (string, error) {
	// Bytes at or above limit are rejected so every character is equally likely.
	const limit = 256 - 256%len(nameAlphabet)

	out := make([]byte, 0, nameLength)
	buf := make([]byte, nameLength*2)
	for len(out) < nameLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, nameAlphabet[int(b)%len(nameAlphabet)])
			if len(out) == nameLength {
				break
			}
		}
	}
	return string(out), nil
}
