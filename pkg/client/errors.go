package client

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired is returned when the access token was rejected and
	// could not be refreshed. The credential store has been cleared.
	ErrSessionExpired = errors.New("session expired, please log in again")

	// ErrUnrecognizedShape is returned when a list endpoint answers with a
	// body that is neither an array nor a known envelope.
	ErrUnrecognizedShape = errors.New("unrecognized list response shape")

	ErrNotLoggedIn = errors.New("not logged in")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindServer
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	case KindTransient:
		return "network"
	default:
		return "unknown"
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// APIError is a non-2xx answer from the server. Body holds the raw response
// so server errors can be shown verbatim.
type APIError struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return fmt.Sprintf("%s error (%d): %s", e.Kind, e.StatusCode, msg)
}

// TransientError wraps a transport failure; the request may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// KindOf classifies err. ErrSessionExpired counts as an authentication
// failure.
func KindOf(err error) Kind {
	var apiErr *APIError
	var netErr *TransientError
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNotLoggedIn):
		return KindAuthentication
	case errors.As(err, &apiErr):
		return apiErr.Kind
	case errors.As(err, &netErr):
		return KindTransient
	default:
		return KindUnknown
	}
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool { return KindOf(err) == KindAuthorization }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
