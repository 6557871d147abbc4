// Package mnerr defines the stable error kinds the core surfaces across
// component boundaries, and wraps causes with a stack trace via eris.
package mnerr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind is the closed set of error categories the façade and background
// workers distinguish on.
type Kind string

const (
	KindInputInvalid       Kind = "input-invalid"
	KindDuplicate          Kind = "duplicate"
	KindResolverAmbiguous  Kind = "resolver-ambiguous"
	KindExtractorTimeout   Kind = "extractor-timeout"
	KindExtractorMalformed Kind = "extractor-malformed"
	KindStorageConflict    Kind = "storage-conflict"
	KindIntegrityViolated  Kind = "integrity-violated"
	KindNotFound           Kind = "not-found"
)

// Error is a stable-kind error with an eris-wrapped cause chain.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind-tagged error from a format string, wrapping it with eris
// so the cause chain carries a stack trace from the call site.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: eris.New(fmt.Sprintf(format, args...))}
}

// Wrap tags an existing error with a Kind, capturing the call-site stack via
// eris.Wrap. Returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: eris.Wrap(err, msg)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
