package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuthentication:
		return "not_authenticated"
	case KindAuthorization:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Status maps the kind onto its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ForbiddenMessage is the only message ever returned for an authorization
// failure, whether or not the target exists.
const ForbiddenMessage = "You do not have permission to perform this action"

type AppError struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
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
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Status() int { return e.Kind.Status() }

func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: kind.String(), Message: message, Err: err}
}

// Validation builds a 400 error carrying one message per offending field.
func Validation(fields map[string]string) *AppError {
	e := New(KindValidation, "Invalid input", nil)
	e.Fields = fields
	return e
}

func Unauthenticated(code, message string) *AppError {
	e := New(KindAuthentication, message, nil)
	if code != "" {
		e.Code = code
	}
	return e
}

func Forbidden() *AppError {
	return New(KindAuthorization, ForbiddenMessage, nil)
}

func NotFound(message string) *AppError {
	return New(KindNotFound, message, nil)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message, nil)
}

func Internal(err error) *AppError {
	return New(KindInternal, "Internal server error", err)
}

// KindOf reports the kind of err, defaulting to KindInternal for errors that
// are not AppErrors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldErrors accumulates validation failures; Err returns nil when empty.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(map[string]string(f))
}
