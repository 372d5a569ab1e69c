package application

import (
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

type Status struct {
	Account    domain.Account
	Window     domain.ClaimWindow
	HasSession bool
	// Remaining is measured at CheckedAt.
	Remaining time.Duration
	CheckedAt time.Time
}

func (s Status) Halted() bool {
	return s.Window.Halted
}

func (s Status) Due() bool {
	return !s.Window.Halted && s.Remaining <= 0
}
