// Blob lifecycle states.

package pipeline

// State tracks how far a single ingested blob has progressed through a run.
// Rejected is terminal; every other state advances in order.
type State int

const (
	StateStandardizing State = iota
	StateRejected
	StateInserted
	StateCandidatesRequested
	StateVerdictsPending
	StateMerged
	StateIsolated
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateStandardizing:
		return "standardizing"
	case StateRejected:
		return "rejected"
	case StateInserted:
		return "inserted"
	case StateCandidatesRequested:
		return "candidates-requested"
	case StateVerdictsPending:
		return "verdicts-pending"
	case StateMerged:
		return "merged"
	case StateIsolated:
		return "isolated"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}
