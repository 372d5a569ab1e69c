package domain

import "time"

// ClaimWindow is the persisted per-account record. NextEligibleAt only moves
// forward.
type ClaimWindow struct {
	AccountID      AccountID
	NextEligibleAt time.Time
	UpdatedAt      time.Time
	Halted         bool
	HaltReason     string
}

// Remaining is how long until NextEligibleAt, zero once it has passed.
func (w ClaimWindow) Remaining(now time.Time) time.Duration {
	if w.NextEligibleAt.IsZero() || !now.Before(w.NextEligibleAt) {
		return 0
	}

	return w.NextEligibleAt.Sub(now)
}

func (w ClaimWindow) IsOpen(now time.Time) bool {
	return w.Remaining(now) == 0
}

type MiningSnapshot struct {
	ClaimedTotal    float64
	ClaimableAmount float64
	Rate            float64
	LastClaimAt     time.Time
	DeadlineAt      time.Time
	// Cooldown is zero when the remote does not report one.
	Cooldown time.Duration
}

// RemoteEligibleAt is the instant the remote allows the next claim, or the
// zero time when the snapshot carries no last-claim timestamp.
func (s MiningSnapshot) RemoteEligibleAt(fallback time.Duration) time.Time {
	if s.LastClaimAt.IsZero() {
		return time.Time{}
	}

	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = fallback
	}

	return s.LastClaimAt.Add(cooldown)
}

type ClaimResult struct {
	Accepted bool
	Message  string
}

// ClaimAttempt is the bounded retry budget of a single cycle.
type ClaimAttempt struct {
	Number      int
	MaxAttempts int
}

// NewClaimAttempt treats a non-positive budget as a single attempt.
func NewClaimAttempt(maxAttempts int) ClaimAttempt {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return ClaimAttempt{MaxAttempts: maxAttempts}
}

// Next advances to the next attempt and reports whether it may run.
func (a *ClaimAttempt) Next() bool {
	if a.Number >= a.MaxAttempts {
		return false
	}

	a.Number++
	return true
}

func (a ClaimAttempt) Exhausted() bool {
	return a.Number >= a.MaxAttempts
}
