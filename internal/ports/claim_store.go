package ports

import (
	"context"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

// ClaimStore persists the next eligible claim time per account.
//
// Get returns a zero window for unknown accounts. Set rejects values that do
// not move the window forward with domain.ErrStaleWindow.
type ClaimStore interface {
	Get(ctx context.Context, id domain.AccountID) (domain.ClaimWindow, error)
	Set(ctx context.Context, id domain.AccountID, nextEligibleAt time.Time) error
	MarkHalted(ctx context.Context, id domain.AccountID, reason string) error
	Reset(ctx context.Context, id domain.AccountID) error
	List(ctx context.Context) ([]domain.ClaimWindow, error)
}
