package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies import failures.
type ErrorKind string

const (
	KindDuplicateID       ErrorKind = "DUPLICATE_ID"
	KindMissingID         ErrorKind = "MISSING_ID"
	KindCyclicReference   ErrorKind = "CYCLIC_REFERENCE"
	KindSchemaConflict    ErrorKind = "SCHEMA_CONFLICT"
	KindIOFailure         ErrorKind = "IO_FAILURE"
	KindPermissionFailure ErrorKind = "PERMISSION_FAILURE"
	KindInvalidValue      ErrorKind = "INVALID_VALUE"
	KindUnknownAction     ErrorKind = "UNKNOWN_ACTION"
)

// ImportError is a classified failure raised by an import stage.
type ImportError struct {
	Kind    ErrorKind
	Entity  string
	IDs     []string
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ImportError) Unwrap() error { return e.Err }

// NewError builds a classified error for entity.
func NewError(kind ErrorKind, entity string, err error, format string, args ...any) *ImportError {
	return &ImportError{Kind: kind, Entity: entity, Err: err, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost ImportError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// Classify wraps a foreign error with kind unless it is already classified.
func Classify(err error, kind ErrorKind, entity, op string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &ImportError{Kind: kind, Entity: entity, Message: op, Err: err}
}

// JoinSamples renders up to limit samples, separated by sep, followed by
// " and more." when more were seen.
func JoinSamples(samples []string, sep string, limit int, truncated bool) string {
	if len(samples) > limit {
		samples = samples[:limit]
		truncated = true
	}
	out := strings.Join(samples, sep)
	if truncated {
		out += " and more."
	}
	return out
}

// ErrNotFound reports a missing entity, attribute or row.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}
