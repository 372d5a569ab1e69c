package application

import "github.com/bnema/pocketfi-claimer/internal/domain"

type AddAccountCommand struct {
	ID        domain.AccountID
	Name      string
	Proxy     string
	UserAgent string
}

type SetSessionCommand struct {
	ID    domain.AccountID
	Value string
	// SecretKey overrides the default pocketfi://<id>/session key.
	SecretKey string
}
