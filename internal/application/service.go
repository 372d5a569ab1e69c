package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

var ErrAccountExists = errors.New("account already exists")

// Service is the account administration surface used by the CLI.
type Service struct {
	repo   ports.AccountRepository
	store  ports.SecretStore
	claims ports.ClaimStore
	clock  ports.Clock
}

func NewService(repo ports.AccountRepository, store ports.SecretStore, claims ports.ClaimStore, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:   repo,
		store:  store,
		claims: claims,
		clock:  clock,
	}
}

func SessionSecretKey(id domain.AccountID) string {
	return fmt.Sprintf("pocketfi://%s/session", id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *Service) AddAccount(ctx context.Context, cmd AddAccountCommand) (domain.Account, error) {
	account := domain.Account{
		ID:        domain.AccountID(strings.TrimSpace(string(cmd.ID))),
		Name:      strings.TrimSpace(cmd.Name),
		Proxy:     strings.TrimSpace(cmd.Proxy),
		UserAgent: strings.TrimSpace(cmd.UserAgent),
	}
	if account.Name == "" {
		account.Name = fmt.Sprintf("Account %s", account.ID)
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("validate account: %w", err)
	}

	_, err := s.repo.GetByID(ctx, account.ID)
	switch {
	case err == nil:
		return domain.Account{}, fmt.Errorf("%w: %s", ErrAccountExists, account.ID)
	case !errors.Is(err, domain.ErrAccountNotFound):
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}

	if err := s.repo.Save(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}

	return account, nil
}

// SetSession stores the web-app session data for an account and points the
// account at it. A previous secret under a different key is removed once the
// account is saved; any failure on the way restores the previous state.
func (s *Service) SetSession(ctx context.Context, cmd SetSessionCommand) error {
	value := strings.TrimSpace(cmd.Value)
	if value == "" {
		return errors.New("session value is empty")
	}

	account, err := s.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	original := account

	secretKey := cmd.SecretKey
	if secretKey == "" {
		secretKey = SessionSecretKey(account.ID)
	}

	if err := s.store.Put(ctx, secretKey, value); err != nil {
		return fmt.Errorf("store session secret: %w", err)
	}

	account.SessionRef = secretKey
	if err := s.repo.Save(ctx, account); err != nil {
		if original.SessionRef == secretKey {
			return fmt.Errorf("save account session: %w", err)
		}
		if rollbackErr := s.store.Delete(ctx, secretKey); rollbackErr != nil {
			return fmt.Errorf("save account session and rollback stored secret: %w", errors.Join(err, rollbackErr))
		}

		return fmt.Errorf("save account session: %w", err)
	}

	if original.SessionRef == "" || original.SessionRef == secretKey {
		return nil
	}

	if err := s.store.Delete(ctx, original.SessionRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		var rollbackErr error
		if restoreErr := s.repo.Save(ctx, original); restoreErr != nil {
			rollbackErr = errors.Join(rollbackErr, restoreErr)
		}
		if newSecretDeleteErr := s.store.Delete(ctx, secretKey); newSecretDeleteErr != nil {
			rollbackErr = errors.Join(rollbackErr, newSecretDeleteErr)
		}
		if rollbackErr != nil {
			return fmt.Errorf("delete previous session secret and rollback session update: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("delete previous session secret: %w", err)
	}

	return nil
}

func (s *Service) ClearSession(ctx context.Context, id domain.AccountID) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	if account.SessionRef == "" {
		return nil
	}
	original := account

	account.SessionRef = ""
	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account session: %w", err)
	}

	if err := s.store.Delete(ctx, original.SessionRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		if restoreErr := s.repo.Save(ctx, original); restoreErr != nil {
			return fmt.Errorf("delete session secret and restore account: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete session secret: %w", err)
	}

	return nil
}

// ResetAccount lifts a halt so the account is scheduled again. The claim
// window keeps its timestamp.
func (s *Service) ResetAccount(ctx context.Context, id domain.AccountID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	if err := s.claims.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset claim window: %w", err)
	}

	return nil
}

func (s *Service) GetStatus(ctx context.Context, id domain.AccountID) (Status, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("get account by id: %w", err)
	}

	window, err := s.claims.Get(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("get claim window: %w", err)
	}

	return s.statusFromAccount(account, window), nil
}

func (s *Service) GetStatusAll(ctx context.Context) ([]Status, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	windows, err := s.claims.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim windows: %w", err)
	}
	byID := make(map[domain.AccountID]domain.ClaimWindow, len(windows))
	for _, window := range windows {
		byID[window.AccountID] = window
	}

	statuses := make([]Status, 0, len(accounts))
	for _, account := range accounts {
		window, ok := byID[account.ID]
		if !ok {
			window = domain.ClaimWindow{AccountID: account.ID}
		}
		statuses = append(statuses, s.statusFromAccount(account, window))
	}

	return statuses, nil
}

func (s *Service) statusFromAccount(account domain.Account, window domain.ClaimWindow) Status {
	now := s.clock.Now()

	return Status{
		Account:    account,
		Window:     window,
		HasSession: account.SessionRef != "",
		Remaining:  window.Remaining(now),
		CheckedAt:  now,
	}
}
