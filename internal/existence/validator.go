// Package existence decides whether an x community still exists, with
// hysteresis: one empty or failed scrape is routine (rate limiting, private
// community, transient network error), so deletion is only confirmed by an
// unambiguous 404 or by repeated inconclusive checks.
package existence

import "trenchwatch/mesh/internal/store"

// Verdict is the tri-state liveness verdict for a community.
type Verdict int

const (
	VerdictActive Verdict = iota
	VerdictSuspected
	VerdictDeleted
)

func (v Verdict) String() string {
	switch v {
	case VerdictActive:
		return "active"
	case VerdictSuspected:
		return "suspected"
	case VerdictDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// StoreStatus maps a verdict to its community scrape_status value.
func (v Verdict) StoreStatus() string {
	switch v {
	case VerdictActive:
		return store.StatusActive
	case VerdictDeleted:
		return store.StatusDeleted
	default:
		return store.StatusSuspected
	}
}

// VerdictFromStatus maps a stored scrape_status back to a verdict. Pending
// communities start as active for evaluation purposes.
func VerdictFromStatus(status string) Verdict {
	switch status {
	case store.StatusSuspected:
		return VerdictSuspected
	case store.StatusDeleted:
		return VerdictDeleted
	default:
		return VerdictActive
	}
}

// Config holds the hysteresis policy. The threshold is a tuned policy value,
// not a correctness requirement.
type Config struct {
	// FailThreshold is the stored fail count at which the next inconclusive
	// check confirms deletion.
	FailThreshold int
}

// DefaultConfig returns the production-tuned hysteresis policy.
func DefaultConfig() Config {
	return Config{FailThreshold: 2}
}

// Signal is one observation cycle: the member-list fetch outcome and, when the
// fetch was ambiguous, the web check status (0 when no check was performed).
type Signal struct {
	MembersFetched bool
	MemberCount    int
	WebStatus      int
}

// Outcome is the result of evaluating one signal against the current state.
type Outcome struct {
	Verdict   Verdict
	FailCount int
	// Transitioned is true only on the evaluation that entered DELETED.
	// DELETED is terminal; later evaluations never report it again.
	Transitioned bool
}

// Evaluate advances the liveness state machine by one check.
//
//	ACTIVE    -- scrape >=1 member --> ACTIVE (fail reset)
//	ACTIVE    -- ambiguous         --> SUSPECTED (fail=1)
//	SUSPECTED -- scrape >=1 member --> ACTIVE (fail reset)
//	SUSPECTED -- 404               --> DELETED
//	SUSPECTED -- ambiguous, fail < threshold --> SUSPECTED (fail++)
//	SUSPECTED -- ambiguous, fail >= threshold --> DELETED
//	DELETED is terminal.
//
// A 404 is the only conclusive web signal and deletes from any live state.
func Evaluate(cfg Config, state Verdict, failCount int, sig Signal) Outcome {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultConfig().FailThreshold
	}

	if state == VerdictDeleted {
		return Outcome{Verdict: VerdictDeleted, FailCount: failCount}
	}

	if sig.WebStatus == 404 {
		return Outcome{Verdict: VerdictDeleted, FailCount: failCount, Transitioned: true}
	}

	if sig.MembersFetched && sig.MemberCount > 0 {
		return Outcome{Verdict: VerdictActive, FailCount: 0}
	}

	// Ambiguous: empty member list or failed fetch, web check inconclusive.
	if state == VerdictSuspected && failCount >= cfg.FailThreshold {
		return Outcome{Verdict: VerdictDeleted, FailCount: failCount, Transitioned: true}
	}
	if state == VerdictSuspected {
		return Outcome{Verdict: VerdictSuspected, FailCount: failCount + 1}
	}
	return Outcome{Verdict: VerdictSuspected, FailCount: 1}
}
