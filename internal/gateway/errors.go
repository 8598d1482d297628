package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a backend failure for the caller's benefit.
type Kind string

const (
	// KindAuth: token missing, expired or refused. Not retryable here;
	// the session needs a refreshed credential.
	KindAuth Kind = "auth"
	// KindValidation: the backend rejected the request contents.
	KindValidation Kind = "validation"
	// KindConflict: the request collided with existing state.
	KindConflict Kind = "conflict"
	// KindNotFound: the referenced profile, room or reel does not exist.
	KindNotFound Kind = "not_found"
	// KindTransient: network or server-side trouble worth retrying.
	KindTransient Kind = "transient"
)

// APIError is the single error shape every backend failure is normalized
// into. Callers never see raw response bodies.
type APIError struct {
	Status  int
	Kind    Kind
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("backend error: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool { return e.Kind == KindTransient }

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindTransient
	}
}
