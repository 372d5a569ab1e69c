package ports

import (
	"context"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

type CredentialProvider interface {
	Credentials(ctx context.Context, account domain.Account) (domain.Credentials, error)
}

type ProxyChecker interface {
	// Check returns the exit IP seen through the proxy.
	Check(ctx context.Context, proxy domain.Proxy) (string, error)
}
