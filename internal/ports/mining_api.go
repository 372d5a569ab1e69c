package ports

import (
	"context"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

type MiningAPI interface {
	FetchState(ctx context.Context, token string) (domain.MiningSnapshot, error)
	SubmitClaim(ctx context.Context, token string) (domain.ClaimResult, error)
	DailyBoostAvailable(ctx context.Context, token string) (bool, error)
	ActivateDailyBoost(ctx context.Context, token string) (int, error)
}

// MiningAPIFactory builds a client bound to one account's proxy and user agent.
type MiningAPIFactory func(creds domain.Credentials) (MiningAPI, error)
