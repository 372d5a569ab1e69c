package pocketfi

import (
	"time"

	"github.com/bnema/pocketfi-claimer/internal/adapters/transport"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

// NewFactory returns a factory that binds a fresh client to each account's
// proxy and user agent.
func NewFactory(api API, timeout time.Duration) ports.MiningAPIFactory {
	return func(creds domain.Credentials) (ports.MiningAPI, error) {
		httpClient, err := transport.NewHTTPClient(creds, timeout)
		if err != nil {
			return nil, err
		}

		return &Client{API: api, HTTPClient: httpClient, RequestTimeout: timeout}, nil
	}
}
