package kb

import (
	"errors"
	"fmt"
)

// Kind classifies a knowledge base failure so callers can react
// appropriately: fix their input, install a dependency, retry a fetch,
// or check the disk.
type Kind string

const (
	// KindValidation means caller input violates a documented
	// precondition. Never retried automatically.
	KindValidation Kind = "validation"

	// KindDependency means the embedding model or storage backend is
	// not installed or reachable. A deployment problem, not a content
	// problem.
	KindDependency Kind = "dependency_unavailable"

	// KindFetch means URL content retrieval failed. Distinct from
	// indexing errors so the fetch can be retried independently.
	KindFetch Kind = "fetch_failed"

	// KindStorage means the persistence layer failed.
	KindStorage Kind = "storage"
)

// Error is the structured error returned by all Manager operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string

	// Transient marks dependency failures worth retrying (unreachable
	// daemon) as opposed to permanent ones (missing API key).
	Transient bool

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a knowledge base error of the given kind.
func IsKind(err error, kind Kind) bool {
	var kbErr *Error
	return errors.As(err, &kbErr) && kbErr.Kind == kind
}

// validationErr builds a validation error for op.
func validationErr(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// storageErr wraps a persistence failure.
func storageErr(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Msg: "storage failure", Err: err}
}
