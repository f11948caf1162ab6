// internal/gameerr/gameerr.go
package gameerr

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable error class.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindPrecondition Kind = "precondition"
	KindExpired      Kind = "expired"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

// Kind sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrExpired      = &Error{Kind: KindExpired}
	ErrTransient    = &Error{Kind: KindTransient}
)

// Error is returned by every engine operation that fails for a game reason.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += "/" + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newError(KindForbidden, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

func Precondition(code, format string, args ...any) *Error {
	return newError(KindPrecondition, code, format, args...)
}

func Expired(code, format string, args ...any) *Error {
	return newError(KindExpired, code, format, args...)
}

// Transient wraps a store or I/O failure that is safe to retry once.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeStoreUnavailable, Message: "store unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

type kept struct{ err error }

func (k kept) Error() string { return k.err.Error() }
func (k kept) Unwrap() error { return k.err }

// Keep marks err as raised after cleanup was staged in the transaction, so
// the caller commits before returning it.
func Keep(err error) error {
	if err == nil {
		return nil
	}
	return kept{err: err}
}

// Committed reports whether the transaction that produced err must still
// commit. Expired errors always carry staged cleanup.
func Committed(err error) bool {
	if err == nil {
		return false
	}
	var k kept
	return errors.As(err, &k) || KindOf(err) == KindExpired
}
