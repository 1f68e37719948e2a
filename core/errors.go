package core

import (
	"errors"
	"fmt"
)

// NotFoundError reports a referenced identifier that does not exist in
// its category.
type NotFoundError struct {
	Category Category
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory %s/%s not found", e.Category, e.ID)
}

// DuplicateError reports an Add whose body is byte-identical to an
// existing record in the same category.
type DuplicateError struct {
	Category Category
	// ExistingID is the record that already carries this content.
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identical content already stored as %s/%s", e.Category, e.ExistingID)
}

// ConflictError reports an optimistic-version mismatch: the writer read
// revision Expected but the record is now at Actual.
type ConflictError struct {
	Category Category
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update of %s/%s: wrote against revision %d, now at %d",
		e.Category, e.ID, e.Expected, e.Actual)
}

// CategoryMismatchError reports a Link or Cluster whose members span
// categories.
type CategoryMismatchError struct {
	Want Category
	Got  Category
	ID   string
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("record %s is in category %s, expected %s", e.ID, e.Got, e.Want)
}

// UnknownActionError reports a tool call naming an action outside the
// fixed catalog. Rejected before any execution.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// EmbeddingUnavailableError reports an upstream embedding failure.
// Retryable with backoff; never a reason to corrupt the store.
type EmbeddingUnavailableError struct {
	Err error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding service unavailable: %v", e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }

// UpstreamTimeoutError reports an external capability call that exceeded
// its deadline.
type UpstreamTimeoutError struct {
	Op  string
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsDuplicate reports whether err is a DuplicateError.
func IsDuplicate(err error) bool {
	var d *DuplicateError
	return errors.As(err, &d)
}

// Retryable reports whether err is worth retrying with backoff:
// upstream timeouts and embedding outages are, everything else is not.
func Retryable(err error) bool {
	var to *UpstreamTimeoutError
	var eu *EmbeddingUnavailableError
	return errors.As(err, &to) || errors.As(err, &eu)
}
