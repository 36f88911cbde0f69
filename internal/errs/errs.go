// Package errs augments the standard errors package with a Wrap method and
// the kyla error taxonomy: kinds, not types, so callers can
// compare with errors.Is against the sentinel values below.
package errs

import (
	"errors"
	"fmt"
)

var _ error = New("")

// New creates an Error carrying msg.
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method, mirroring
// github.com/oneconcern/datamon/pkg/errors.
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err)
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap attaches a nested error and returns e for chaining.
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

// Is reports whether target is e or e's wrapped error.
func (e *Error) Is(target error) bool {
	return e == target || errors.Is(e.err, target)
}

// As is a shortcut to the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a shortcut to the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

// Sentinel fault kinds. These are compared with errors.Is, never
// type-switched, so a caller can distinguish "which kind of fault" without
// depending on internal error structs.
const (
	// ErrNotARepository means layout detection failed: none of .ky/,
	// k.db or repository.db+data.kypkg were found at the given root.
	ErrNotARepository sentinel = "kyla: not a repository"

	// ErrCatalogCorrupt means the catalog's schema does not match what
	// kyla expects, or a constraint the catalog should guarantee (e.g.
	// digest uniqueness) was violated.
	ErrCatalogCorrupt sentinel = "kyla: catalog corrupt"

	// ErrUnknownObject means GetContentObjects was asked for a digest
	// that has no content_objects row.
	ErrUnknownObject sentinel = "kyla: unknown object"

	// ErrDigestLengthMismatch means a stored digest is not 32 bytes.
	ErrDigestLengthMismatch sentinel = "kyla: digest length mismatch"

	// ErrPackageFormat means a package file's header tag or version is
	// not recognized.
	ErrPackageFormat sentinel = "kyla: unrecognized package format"
)

// IoError wraps a filesystem fault with the path and the underlying error
// kind.
type IoError struct {
	Path string
	Kind error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("kyla: io error at %s: %v", e.Path, e.Kind)
}

func (e *IoError) Unwrap() error { return e.Kind }

// WrapIO builds an IoError if err is non-nil, else returns nil. Convenience
// for the common `if err != nil { return errs.WrapIO(path, err) }` pattern.
func WrapIO(path string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Path: path, Kind: err}
}

// ValidationFaultKind classifies a ValidationFault.
type ValidationFaultKind int

const (
	// Ok means the object's bytes match its digest.
	Ok ValidationFaultKind = iota
	// Missing means the object's bytes are absent.
	Missing
	// Corrupted means bytes are present but do not match the digest.
	Corrupted
)

func (k ValidationFaultKind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case Missing:
		return "Missing"
	case Corrupted:
		return "Corrupted"
	default:
		return "Unknown"
	}
}
