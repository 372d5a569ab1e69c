package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type OutcomeKind string

const (
	OutcomeClaimed             OutcomeKind = "claimed"
	OutcomeNotDue              OutcomeKind = "notDue"
	OutcomeSkippedCooldown     OutcomeKind = "skippedCooldown"
	OutcomeSkippedProxyDown    OutcomeKind = "skippedProxyDown"
	OutcomeAuthFailedPermanent OutcomeKind = "authFailedPermanent"
	OutcomeTransportError      OutcomeKind = "transportError"
)

// Outcome is the single report a cycle emits.
type Outcome struct {
	AccountID      AccountID     `json:"account_id"`
	Kind           OutcomeKind   `json:"kind"`
	Amount         float64       `json:"amount,omitempty"`
	Balance        float64       `json:"balance,omitempty"`
	Remaining      time.Duration `json:"-"`
	Attempts       int           `json:"attempts,omitempty"`
	NextEligibleAt time.Time     `json:"next_eligible_at,omitzero"`
	Error          string        `json:"error,omitempty"`
}

// RemainingSeconds rounds up so a skip never reports zero while the window is
// still closed.
func (o Outcome) RemainingSeconds() int64 {
	if o.Remaining <= 0 {
		return 0
	}

	return int64(math.Ceil(o.Remaining.Seconds()))
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeClaimed:
		return fmt.Sprintf("%s: claimed %.4f", o.AccountID, o.Amount)
	case OutcomeSkippedCooldown:
		return fmt.Sprintf("%s: cooldown, %ds remaining", o.AccountID, o.RemainingSeconds())
	case OutcomeTransportError:
		if o.Error != "" {
			return fmt.Sprintf("%s: %s (%s)", o.AccountID, o.Kind, o.Error)
		}
	}

	return fmt.Sprintf("%s: %s", o.AccountID, o.Kind)
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(struct {
		plain
		RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
	}{plain: plain(o), RemainingSeconds: o.RemainingSeconds()})
}
