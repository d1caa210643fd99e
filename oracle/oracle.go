// Package oracle wraps the external formal-equivalence checker.
//
// A Checker answers whether two content blobs are behaviorally equivalent.
// Checks are expensive (seconds, an external SAT-based process per call), so
// all traffic goes through the Gateway, which bounds concurrency and applies
// the timeout policy.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Checker is the abstract equivalence oracle.
type Checker interface {
	// Check reports whether a and b are behaviorally equivalent.
	// Infrastructure failures return an *InfraError; the boolean is only
	// meaningful when err is nil.
	Check(ctx context.Context, a, b string) (bool, error)
}

// ErrTimeout marks a check that ran past its wall-clock budget. The verdict
// is ambiguous; the Gateway's timeout policy decides how to resolve it.
var ErrTimeout = errors.New("equivalence check timed out")

// InfraError reports that the external tool failed to run at all: the binary
// crashed, was missing, or rejected its inputs. Never coerced to a verdict.
type InfraError struct {
	Stage string
	Err   error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("oracle infrastructure failure (%s): %v", e.Stage, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// IsInfraError reports whether err is an oracle infrastructure failure.
func IsInfraError(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}
