// Package auth supplies bearer tokens issued by the external identity
// provider. The provider itself is out of scope; the client only ever asks
// for the current token and must tolerate rotation between calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no credential is available.
var ErrNoToken = errors.New("no bearer token available")

// TokenSource yields the current bearer token. Implementations may return
// a different token on each call after external refresh.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource wraps a fixed token, mostly for tests and the load
// tools.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileTokenSource re-reads a token file on every call, so an external
// refresher can rotate credentials without restarting the client. Reads
// are cached briefly to keep hot paths off the filesystem.
type FileTokenSource struct {
	Path string

	mu     sync.Mutex
	cached string
	readAt time.Time
}

const fileTokenCacheTTL = 5 * time.Second

func (f *FileTokenSource) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" && time.Since(f.readAt) < fileTokenCacheTTL {
		return f.cached, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	f.cached = token
	f.readAt = time.Now()
	return token, nil
}

// Claims is the subset of identity claims the client cares about. Tokens
// are parsed unverified; signature validation is the backend's job.
type Claims struct {
	Subject string
	Expiry  time.Time
}

// ParseClaims extracts subject and expiry from a JWT without verifying it.
func ParseClaims(token string) (Claims, error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	parsed := Claims{}
	if sub, err := claims.GetSubject(); err == nil {
		parsed.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		parsed.Expiry = exp.Time
	}
	return parsed, nil
}
