// Error kinds for corpus operations.

package corpus

import (
	"errors"
	"fmt"
)

// ErrClassNotFound reports an operation naming a class id with no entry in
// the database. Callers must not retry: it indicates an ordering bug upstream.
var ErrClassNotFound = errors.New("equivalence class not found")

// ErrSharedHash reports an attempt to merge two classes that already share a
// member hash. Classes are built from deduplicated inserts, so a shared hash
// means the two classes came from inconsistent canonical pipelines.
var ErrSharedHash = errors.New("classes share a member hash")

// CanonicalizationError reports content that could not be parsed into
// canonical form. Terminal for that blob; never retried.
type CanonicalizationError struct {
	Reason string
	Err    error
}

func (e *CanonicalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("canonicalization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("canonicalization failed: %s", e.Reason)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

// ReferentialError reports an operation that referenced a class id absent
// from the design map, e.g. AddQuestion with an unknown id.
type ReferentialError struct {
	ClassID Digest
	Op      string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("%s: %q is not an id for any design class", e.Op, e.ClassID)
}

func (e *ReferentialError) Unwrap() error { return ErrClassNotFound }
