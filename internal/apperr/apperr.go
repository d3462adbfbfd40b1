package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and retry policy.
type Kind int

const (
	KindValidation Kind = iota // malformed input, wrong requester/target
	KindPermission             // role not authorized for the action
	KindNotFound               // referenced task/request absent
	KindConflict               // non-pending request reviewed, lost race
	KindDatabase               // transaction/infrastructure failure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "database"
	}
}

// Error is the single kinded error type used by the core services.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }
func Permission(msg string) error { return &Error{Kind: KindPermission, Msg: msg} }
func NotFound(msg string) error   { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) error   { return &Error{Kind: KindConflict, Msg: msg} }

// Database wraps an infrastructure failure.
func Database(msg string, err error) error {
	return &Error{Kind: KindDatabase, Msg: msg, Err: err}
}

// KindOf returns the kind of err, defaulting to KindDatabase for
// unclassified errors so infrastructure failures surface as 500s.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing message for err. Database details are
// hidden behind a generic message.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindDatabase {
		return e.Msg
	}
	return "internal error"
}
