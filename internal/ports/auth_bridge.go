package ports

import (
	"context"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

// AuthBridge turns an account session into web-app init data usable as a
// bearer token. Permanent failures are returned as *domain.PermanentAuthError.
type AuthBridge interface {
	Authenticate(ctx context.Context, account domain.Account, creds domain.Credentials) (string, error)
}
