package toml

import (
	"context"
	"fmt"
	"sync"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	accountsPathKey = "accounts.path"
	accountsFile    = "accounts.toml"
)

// Repository keeps accounts in a single TOML file.
type Repository struct {
	accountsPath string
	mu           *sync.RWMutex
}

var _ ports.AccountRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	accountsPath := cfg.GetString(accountsPathKey)
	if accountsPath == "" {
		var err error
		if accountsPath, err = defaultPath(accountsFile); err != nil {
			return nil, err
		}
	}

	accountsPath, err := normalizePath(accountsPath)
	if err != nil {
		return nil, fmt.Errorf("accounts path: %w", err)
	}

	return &Repository{accountsPath: accountsPath, mu: lockForPath(accountsPath)}, nil
}

func (r *Repository) Path() string {
	return r.accountsPath
}

func (r *Repository) Save(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(account)
	updated := false
	for i := range file.Accounts {
		if file.Accounts[i].ID == encoded.ID {
			file.Accounts[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Accounts = append(file.Accounts, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for _, entry := range file.Accounts {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
}

func (r *Repository) List(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, fromSchema(entry))
	}

	return accounts, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	var file fileSchema

	data, err := readFile(r.accountsPath, "accounts")
	if err != nil {
		return fileSchema{}, err
	}
	if data != nil {
		if err := toml.Unmarshal(data, &file); err != nil {
			return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
		}
		if err := file.validateVersion(); err != nil {
			return fileSchema{}, err
		}
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	return writeFileAtomic(r.accountsPath, "accounts", data)
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		ID:         string(account.ID),
		Name:       account.Name,
		Proxy:      account.Proxy,
		UserAgent:  account.UserAgent,
		SessionRef: account.SessionRef,
	}
}

func fromSchema(account accountSchema) domain.Account {
	return domain.Account{
		ID:         domain.AccountID(account.ID),
		Name:       account.Name,
		Proxy:      account.Proxy,
		UserAgent:  account.UserAgent,
		SessionRef: account.SessionRef,
	}
}
