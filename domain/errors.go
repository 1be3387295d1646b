package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is matched by every [ErrMalformedExpression].
	ErrMalformed = errors.New("malformed expression")
	// ErrConstraintViolated is matched by every [ErrConstraintViolation].
	ErrConstraintViolated = errors.New("constraint violated")
	// ErrCancelled is returned when an operation is interrupted by its
	// context. The context cause is joined to it.
	ErrCancelled = errors.New("operation cancelled")
	// ErrCursorClosed is returned when using a closed [Cursor].
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrRewindOutOfBuffer is returned by [Cursor.Back] when the requested
	// position is before the first document of the current batch.
	ErrRewindOutOfBuffer = errors.New("cannot rewind past the start of the current batch")
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// [Cursor.Next].
	ErrScanBeforeNext = errors.New("called Scan before Next")
	// ErrDivideByZero is returned by $divide and $mod with a zero divisor.
	ErrDivideByZero = errors.New("division by zero")
	// ErrCannotModifyID is returned when an update would change the
	// identity field.
	ErrCannotModifyID = errors.New("cannot modify the identity field")
	// ErrIndexNotFound is returned when dropping an unknown index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrNotFound is returned by FindOne when nothing matches.
	ErrNotFound = errors.New("no document found")
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
	// ErrTargetNil is returned when decoding into a nil target.
	ErrTargetNil = errors.New("target is nil")
	// ErrNonPointer is returned when decoding into a non-pointer target.
	ErrNonPointer = errors.New("target is not a pointer")
)

// NewErrCancelled returns [ErrCancelled] joined with the context cause.
func NewErrCancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// ErrMalformedExpression is returned for an unknown operator, a wrong
// arity or an operand of the wrong type in a filter, update, pipeline or
// index specification.
type ErrMalformedExpression struct {
	// Kind is the kind of expression: filter, update, pipeline,
	// expression, index or document.
	Kind       string
	Operator   string
	Field      string
	Collection string
	Reason     string
}

func (e ErrMalformedExpression) Error() string {
	var b strings.Builder
	b.WriteString("malformed ")
	if e.Kind != "" {
		b.WriteString(e.Kind)
	} else {
		b.WriteString("expression")
	}
	if e.Operator != "" {
		fmt.Fprintf(&b, ": operator %s", e.Operator)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " on field %q", e.Field)
	}
	if e.Collection != "" {
		fmt.Fprintf(&b, " in collection %q", e.Collection)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrMalformed) succeed.
func (e ErrMalformedExpression) Is(target error) bool { return target == ErrMalformed }

// ErrConstraintViolation is returned when a write would create a duplicate
// key in a unique index. Succeeded is the number of documents of the same
// write that were applied before the violation.
type ErrConstraintViolation struct {
	Collection string
	Index      string
	Key        Value
	Succeeded  int
}

func (e ErrConstraintViolation) Error() string {
	return fmt.Sprintf("duplicate key in collection %q index %q: %s (%d succeeded before violation)", e.Collection, e.Index, e.Key, e.Succeeded)
}

// Is makes errors.Is(err, ErrConstraintViolated) succeed.
func (e ErrConstraintViolation) Is(target error) bool { return target == ErrConstraintViolated }

// ErrIndexConflict is returned when creating an index whose name or key
// set is already used by a different index.
type ErrIndexConflict struct {
	Collection string
	Name       string
	Reason     string
}

func (e ErrIndexConflict) Error() string {
	return fmt.Sprintf("index %q conflicts in collection %q: %s", e.Name, e.Collection, e.Reason)
}

// ErrDocumentType is returned when a value cannot be converted into a
// document or value.
type ErrDocumentType struct {
	Reason string
}

func (e ErrDocumentType) Error() string { return "invalid document: " + e.Reason }

// ErrDecode wraps third party decoding errors.
type ErrDecode struct {
	Source any
	Target any
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode %T into %T", e.Source, e.Target)
}
