// Gateway - bounded-concurrency front for the equivalence oracle.
//
// At most K checks run system-wide; additional requests queue on a weighted
// semaphore. Each check gets a wall-clock timeout, and an ambiguous timeout
// verdict is resolved by the configured policy. Infrastructure failures pass
// through untouched so callers can count them apart from real negatives.
//
// Information Hiding:
// - Semaphore acquisition and timeout wiring hidden
// - Policy resolution hidden behind Check's boolean result

package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TimeoutPolicy decides what an oracle timeout means.
type TimeoutPolicy int

const (
	// FailClosed treats a timeout as non-equivalent. The safe default: a
	// slow or uncertain proof is not a confirmed equivalence.
	FailClosed TimeoutPolicy = iota
	// FailOpen treats a timeout as equivalent. Kept for compatibility runs
	// against datasets built under that interpretation.
	FailOpen
)

// String returns the policy name.
func (p TimeoutPolicy) String() string {
	switch p {
	case FailClosed:
		return "fail-closed"
	case FailOpen:
		return "fail-open"
	default:
		return "unknown"
	}
}

// ParseTimeoutPolicy parses a policy name.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch s {
	case "fail-closed", "":
		return FailClosed, nil
	case "fail-open":
		return FailOpen, nil
	default:
		return 0, fmt.Errorf("unknown timeout policy: %q", s)
	}
}

// Pair names two class ids whose representative contents should be checked.
type Pair struct {
	A, B     string // class ids
	ContentA string
	ContentB string
}

// PairVerdict is the outcome of one pairwise check.
type PairVerdict struct {
	A, B       string
	Equivalent bool
	TimedOut   bool
	Err        error // non-nil only for infrastructure failures
}

// Gateway bounds and times oracle invocations.
type Gateway struct {
	checker Checker
	sem     *semaphore.Weighted
	timeout time.Duration
	policy  TimeoutPolicy
}

// NewGateway creates a gateway allowing at most concurrency simultaneous
// checks, each with the given wall-clock timeout. Zero or negative
// concurrency defaults to 4; a zero timeout defaults to 60s.
func NewGateway(checker Checker, concurrency int, timeout time.Duration, policy TimeoutPolicy) *Gateway {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		checker: checker,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		policy:  policy,
	}
}

// Check runs one equivalence check under the concurrency cap and timeout.
// A timeout is resolved by the gateway policy and reported via timedOut so
// callers can log it apart from a definite negative. Infrastructure errors
// are returned as-is.
func (g *Gateway) Check(ctx context.Context, a, b string) (equivalent, timedOut bool, err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return false, false, fmt.Errorf("failed to acquire oracle slot: %w", err)
	}
	defer g.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.checker.Check(callCtx, a, b)
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return g.policy == FailOpen, true, nil
		}
		return false, false, err
	}
	return verdict, false, nil
}

// SelfCheck verifies the oracle on a trivially-true case: content checked
// against itself must be equivalent. Run this before trusting a batch of
// cross-checks.
func (g *Gateway) SelfCheck(ctx context.Context, content string) error {
	equivalent, timedOut, err := g.Check(ctx, content, content)
	if err != nil {
		return fmt.Errorf("oracle self-check failed: %w", err)
	}
	if timedOut {
		return fmt.Errorf("oracle self-check timed out")
	}
	if !equivalent {
		return fmt.Errorf("oracle self-check failed: content not equivalent to itself")
	}
	return nil
}

// CheckPairs runs a batch of pairwise checks concurrently, all under the
// shared concurrency cap. Every pair produces a verdict: per-pair failures
// are captured in the verdict rather than aborting the batch, and all
// verdicts are gathered before returning so callers never act on a partial
// batch. Only ctx cancellation returns an error.
func (g *Gateway) CheckPairs(ctx context.Context, pairs []Pair) ([]PairVerdict, error) {
	verdicts := make([]PairVerdict, len(pairs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, pair := range pairs {
		group.Go(func() error {
			equivalent, timedOut, err := g.Check(groupCtx, pair.ContentA, pair.ContentB)
			verdicts[i] = PairVerdict{
				A:          pair.A,
				B:          pair.B,
				Equivalent: equivalent,
				TimedOut:   timedOut,
				Err:        err,
			}
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
