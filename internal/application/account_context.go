package application

import (
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

// AccountContext is the runtime state of one account. It is owned by a
// single caller and must not be passed to concurrent cycles.
type AccountContext struct {
	Account     domain.Account
	Credentials domain.Credentials
	API         ports.MiningAPI
	Session     domain.Session
	Profile     *domain.Profile
	ExitIP      string
	Halted      bool
}

func NewAccountContext(account domain.Account, creds domain.Credentials, api ports.MiningAPI) *AccountContext {
	return &AccountContext{
		Account:     account,
		Credentials: creds,
		API:         api,
	}
}
