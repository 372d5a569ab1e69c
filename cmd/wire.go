package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/adapters/auth/webview"
	"github.com/bnema/pocketfi-claimer/internal/adapters/credentials"
	"github.com/bnema/pocketfi-claimer/internal/adapters/pocketfi"
	statusadapter "github.com/bnema/pocketfi-claimer/internal/adapters/render/status"
	sqliterepo "github.com/bnema/pocketfi-claimer/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/pocketfi-claimer/internal/adapters/repo/toml"
	chainstore "github.com/bnema/pocketfi-claimer/internal/adapters/secrets/chain"
	filestore "github.com/bnema/pocketfi-claimer/internal/adapters/secrets/file"
	"github.com/bnema/pocketfi-claimer/internal/adapters/transport"
	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/bnema/pocketfi-claimer/internal/config"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/logging"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type app struct {
	cfg            *config.Config
	logger         *zap.Logger
	service        *application.Service
	scheduler      *application.Scheduler
	accounts       ports.AccountRepository
	credentials    ports.CredentialProvider
	miningAPI      ports.MiningAPIFactory
	statusRenderer func([]application.Status, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
	// errOut is shared by the logger and the claim spinner.
	errOut         zapcore.WriteSyncer
	closers        []io.Closer
}

type wireOptions struct {
	configFile string
	logLevel   string
}

// wire builds the object graph once. Commands that never touch accounts
// (version, help) skip it.
func (a *app) wire(opts wireOptions, logOutput io.Writer) error {
	if a.service != nil {
		return nil
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: opts.configFile})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	errOut := zapcore.Lock(zapcore.AddSync(logOutput))
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, errOut)
	if err != nil {
		return fmt.Errorf("wire logger: %w", err)
	}

	v := cfg.Viper()
	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return fmt.Errorf("wire account repository: %w", err)
	}

	v.Set(config.KeyStatePath, cfg.StatePath())
	claims, err := a.wireClaimStore(cfg)
	if err != nil {
		return err
	}

	secrets, err := wireSecretStore(cfg, logger)
	if err != nil {
		return err
	}

	scheduler, err := application.NewScheduler(application.SchedulerConfig{
		MaxClaimRetries: cfg.Claim.MaxRetries,
		ClaimCooldown:   cfg.Claim.Cooldown,
		ErrorBackoff:    cfg.Claim.ErrorBackoff,
		RetryDelay:      cfg.Claim.RetryDelay,
		SessionTTL:      cfg.SessionTTL,
		DailyBoost:      cfg.Claim.DailyBoost,
	}, claims, wireAuthBridge(cfg, secrets), transport.ProxyChecker{
		CheckURL: cfg.Proxy.CheckURL,
		Timeout:  cfg.Proxy.CheckTimeout,
	}, ports.SystemClock{}, logger)
	if err != nil {
		return fmt.Errorf("wire scheduler: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.errOut = errOut
	a.service = application.NewService(repo, secrets, claims, ports.SystemClock{})
	a.scheduler = scheduler
	a.accounts = repo
	a.credentials = credentials.NewProvider(credentials.Config{
		Source:    cfg.Proxy.Source,
		ProxyFile: cfg.Proxy.File,
	}, repo)
	a.miningAPI = pocketfi.NewFactory(pocketfi.API{
		BaseURL:      cfg.API.BaseURL,
		TasksBaseURL: cfg.API.TasksBaseURL,
	}, cfg.API.Timeout)
	a.statusRenderer = statusadapter.Render
	a.now = time.Now

	logger.Debug("wired application",
		zap.String("config", cfg.Source),
		zap.String("accounts", repo.Path()),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("state", cfg.StatePath()),
		zap.String("proxy_source", string(cfg.Proxy.Source)),
		zap.String("auth_bridge", cfg.Auth.Bridge),
	)

	return nil
}

func (a *app) wireClaimStore(cfg *config.Config) (ports.ClaimStore, error) {
	if cfg.State.Backend == config.BackendSQLite {
		store, err := sqliterepo.NewClaimStore(cfg.Viper())
		if err != nil {
			return nil, fmt.Errorf("wire sqlite claim store: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	}

	store, err := tomlrepo.NewClaimStore(cfg.Viper())
	if err != nil {
		return nil, fmt.Errorf("wire claim store: %w", err)
	}
	return store, nil
}

func wireSecretStore(cfg *config.Config, logger *zap.Logger) (ports.SecretStore, error) {
	if cfg.SecretsBackend == config.SecretsFile {
		return filestore.NewStore(cfg.SecretsDir), nil
	}

	store, err := chainstore.NewPassFirstWithFileFallback(cfg.SecretsDir, logger.Named("secrets"))
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}
	return store, nil
}

func wireAuthBridge(cfg *config.Config, secrets ports.SecretStore) ports.AuthBridge {
	if cfg.Auth.Bridge == config.BridgeHTTP {
		return webview.HTTPBridge{BaseURL: cfg.Auth.BridgeURL, RequestTimeout: cfg.API.Timeout}
	}

	return webview.VaultBridge{Secrets: secrets}
}

func (a *app) newRunner(only []domain.AccountID) *application.Runner {
	return application.NewRunner(application.RunnerConfig{
		PollSpec:    a.cfg.Schedule.Poll,
		Concurrency: a.cfg.Schedule.Concurrency,
		Only:        only,
	}, a.scheduler, a.accounts, a.credentials, a.miningAPI, a.logger)
}

func (a *app) Close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer.Close())
	}
	a.closers = nil

	if a.logger != nil {
		// Sync on a terminal stderr returns EINVAL on Linux.
		_ = a.logger.Sync()
	}

	return errors.Join(errs...)
}
