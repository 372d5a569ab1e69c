package ports

import "context"

// SecretStore holds account session data under keys like
// pocketfi://<id>/session. Get returns domain.ErrSecretNotFound for unknown
// keys.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
