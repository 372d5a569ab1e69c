package webview

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

// VaultBridge serves init data captured earlier and kept in the secret store.
// A missing or malformed entry cannot heal on its own, so it is permanent.
type VaultBridge struct {
	Secrets ports.SecretStore
}

var _ ports.AuthBridge = VaultBridge{}

func (b VaultBridge) Authenticate(ctx context.Context, account domain.Account, _ domain.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if account.SessionRef == "" {
		return "", &domain.PermanentAuthError{AccountID: account.ID, Reason: "no session stored"}
	}

	raw, err := b.Secrets.Get(ctx, account.SessionRef)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return "", &domain.PermanentAuthError{AccountID: account.ID, Reason: "session secret missing", Err: err}
		}
		return "", fmt.Errorf("read session secret: %w", err)
	}

	token, err := ExtractInitData(raw)
	if err != nil {
		return "", &domain.PermanentAuthError{AccountID: account.ID, Reason: "stored session unusable", Err: err}
	}

	return token, nil
}
