package ports

import (
	"context"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

// AccountRepository stores account settings only. Claim windows live in the
// ClaimStore and session data in the SecretStore.
type AccountRepository interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
}
