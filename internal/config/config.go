// Package config loads pfc settings from ~/.pocketfi/config.toml, .env files
// and PFC_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/adapters/credentials"
	"github.com/bnema/pocketfi-claimer/internal/logging"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	EnvPrefix  = "PFC"
	configDir  = ".pocketfi"
	configFile = "config.toml"
	envFile    = ".env"

	BackendTOML   = "toml"
	BackendSQLite = "sqlite"

	BridgeVault = "vault"
	BridgeHTTP  = "http"

	SecretsChain = "chain"
	SecretsFile  = "file"
)

// Keys shared with the adapters that read viper directly.
const (
	KeyClaimMaxRetries   = "claim.max_retries"
	KeyClaimCooldown     = "claim.cooldown_seconds"
	KeyClaimErrorBackoff = "claim.error_backoff_seconds"
	KeyClaimRetryDelay   = "claim.retry_delay"
	KeyClaimDailyBoost   = "claim.daily_boost"
	KeyProxySource       = "proxy.source"
	KeyProxyFile         = "proxy.file"
	KeyProxyCheckURL     = "proxy.check_url"
	KeyProxyCheckTimeout = "proxy.check_timeout"
	KeyStateBackend      = "state.backend"
	KeyStatePath         = "state.path"
	KeyStateLockTimeout  = "state.lock_timeout"
	KeyAccountsPath      = "accounts.path"
	KeySecretsDir        = "secrets.dir"
	KeySecretsBackend    = "secrets.backend"
	KeySchedulePoll      = "schedule.poll"
	KeyConcurrency       = "schedule.concurrency"
	KeySessionTTL        = "session.ttl"
	KeyAPIBaseURL        = "api.base_url"
	KeyAPITasksBaseURL   = "api.tasks_base_url"
	KeyAPITimeout        = "api.timeout"
	KeyAuthBridge        = "auth.bridge"
	KeyAuthBridgeURL     = "auth.bridge_url"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
)

type Config struct {
	Claim    ClaimConfig
	Proxy    ProxyConfig
	State    StateConfig
	Schedule ScheduleConfig
	API      APIConfig
	Auth     AuthConfig
	Log      LogConfig

	AccountsPath   string
	SecretsDir     string
	SecretsBackend string
	SessionTTL     time.Duration

	// Source is the config file that was read, empty when none existed.
	Source string

	v *viper.Viper
}

type ClaimConfig struct {
	MaxRetries   int
	Cooldown     time.Duration
	ErrorBackoff time.Duration
	RetryDelay   time.Duration
	DailyBoost   bool
}

type ProxyConfig struct {
	Source       credentials.Source
	File         string
	CheckURL     string
	CheckTimeout time.Duration
}

type StateConfig struct {
	Backend     string
	Path        string
	LockTimeout time.Duration
}

type ScheduleConfig struct {
	Poll        string
	Concurrency int
}

type APIConfig struct {
	BaseURL      string
	TasksBaseURL string
	Timeout      time.Duration
}

type AuthConfig struct {
	Bridge    string
	BridgeURL string
}

type LogConfig struct {
	Level  string
	Format string
}

type LoadOptions struct {
	// ConfigFile must exist when set. Otherwise ~/.pocketfi/config.toml is
	// read if present.
	ConfigFile string
	// EnvFiles default to ./.env and ~/.pocketfi/.env. Missing files are
	// skipped.
	EnvFiles []string
	HomeDir  string
}

// Viper exposes the merged settings to adapters that take a *viper.Viper.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

func Load(opts LoadOptions) (*Config, error) {
	home := opts.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
	}
	base := filepath.Join(home, configDir)

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{envFile, filepath.Join(base, envFile)}
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, base)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	source, err := readConfigFile(v, opts.ConfigFile, filepath.Join(base, configFile))
	if err != nil {
		return nil, err
	}
	if err := applyLegacyEnv(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, base string) {
	v.SetDefault(KeyClaimMaxRetries, 3)
	v.SetDefault(KeyClaimCooldown, 10800)
	v.SetDefault(KeyClaimErrorBackoff, 600)
	v.SetDefault(KeyClaimRetryDelay, "0s")
	v.SetDefault(KeyClaimDailyBoost, true)
	v.SetDefault(KeyProxySource, string(credentials.SourceNone))
	v.SetDefault(KeyProxyFile, filepath.Join(base, "proxies.txt"))
	v.SetDefault(KeyProxyCheckURL, "https://httpbin.org/ip")
	v.SetDefault(KeyProxyCheckTimeout, "5s")
	v.SetDefault(KeyStateBackend, BackendTOML)
	v.SetDefault(KeyStatePath, "")
	v.SetDefault(KeyStateLockTimeout, "5s")
	v.SetDefault(KeyAccountsPath, filepath.Join(base, "accounts.toml"))
	v.SetDefault(KeySecretsDir, filepath.Join(base, "secrets"))
	v.SetDefault(KeySecretsBackend, SecretsChain)
	v.SetDefault(KeySchedulePoll, "@every 1m")
	v.SetDefault(KeyConcurrency, 4)
	v.SetDefault(KeySessionTTL, "1h")
	v.SetDefault(KeyAPIBaseURL, "https://gm.pocketfi.org")
	v.SetDefault(KeyAPITasksBaseURL, "https://bot.pocketfi.org")
	v.SetDefault(KeyAPITimeout, "15s")
	v.SetDefault(KeyAuthBridge, BridgeVault)
	v.SetDefault(KeyAuthBridgeURL, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logging.FormatConsole)
}

func loadEnvFiles(paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %s: %w", path, err)
		}
		// Load never overrides variables that are already set.
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	return nil
}

func readConfigFile(v *viper.Viper, explicit, fallback string) (string, error) {
	path := explicit
	if path == "" {
		if _, err := os.Stat(fallback); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", nil
			}
			return "", fmt.Errorf("stat config file: %w", err)
		}
		path = fallback
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %s: %w", path, err)
	}

	return path, nil
}

// applyLegacyEnv honours the variable names of the original bot when neither
// the config file nor a PFC_ variable sets the same key.
func applyLegacyEnv(v *viper.Viper) error {
	legacy := []struct {
		env   string
		key   string
		apply func(raw string) (any, error)
	}{
		{
			// CLAIM_RETRY counted retries after the first attempt.
			env: "CLAIM_RETRY", key: KeyClaimMaxRetries,
			apply: func(raw string) (any, error) {
				n, err := strconv.Atoi(raw)
				if err != nil {
					return nil, err
				}
				return n + 1, nil
			},
		},
		{
			env: "SLEEP_BETWEEN_CLAIM", key: KeyClaimCooldown,
			apply: func(raw string) (any, error) {
				minutes, err := strconv.Atoi(raw)
				if err != nil {
					return nil, err
				}
				return minutes * 60, nil
			},
		},
		{
			env: "USE_PROXY_FROM_FILE", key: KeyProxySource,
			apply: func(raw string) (any, error) {
				on, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, err
				}
				if on {
					return string(credentials.SourceExternalList), nil
				}
				return string(credentials.SourceNone), nil
			},
		},
	}

	for _, l := range legacy {
		raw, ok := os.LookupEnv(l.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if v.InConfig(l.key) {
			continue
		}
		if _, ok := os.LookupEnv(envName(l.key)); ok {
			continue
		}

		value, err := l.apply(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", l.env, err)
		}
		v.Set(l.key, value)
	}

	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func decode(v *viper.Viper) (*Config, error) {
	source, err := credentials.ParseSource(v.GetString(KeyProxySource))
	if err != nil {
		return nil, err
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{KeyClaimRetryDelay, KeyProxyCheckTimeout, KeyStateLockTimeout, KeySessionTTL, KeyAPITimeout} {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		durations[key] = d
	}

	return &Config{
		Claim: ClaimConfig{
			MaxRetries:   v.GetInt(KeyClaimMaxRetries),
			Cooldown:     time.Duration(v.GetInt64(KeyClaimCooldown)) * time.Second,
			ErrorBackoff: time.Duration(v.GetInt64(KeyClaimErrorBackoff)) * time.Second,
			RetryDelay:   durations[KeyClaimRetryDelay],
			DailyBoost:   v.GetBool(KeyClaimDailyBoost),
		},
		Proxy: ProxyConfig{
			Source:       source,
			File:         v.GetString(KeyProxyFile),
			CheckURL:     v.GetString(KeyProxyCheckURL),
			CheckTimeout: durations[KeyProxyCheckTimeout],
		},
		State: StateConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStateBackend))),
			Path:        v.GetString(KeyStatePath),
			LockTimeout: durations[KeyStateLockTimeout],
		},
		Schedule: ScheduleConfig{
			Poll:        v.GetString(KeySchedulePoll),
			Concurrency: v.GetInt(KeyConcurrency),
		},
		API: APIConfig{
			BaseURL:      v.GetString(KeyAPIBaseURL),
			TasksBaseURL: v.GetString(KeyAPITasksBaseURL),
			Timeout:      durations[KeyAPITimeout],
		},
		Auth: AuthConfig{
			Bridge:    strings.ToLower(strings.TrimSpace(v.GetString(KeyAuthBridge))),
			BridgeURL: v.GetString(KeyAuthBridgeURL),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		AccountsPath:   v.GetString(KeyAccountsPath),
		SecretsDir:     v.GetString(KeySecretsDir),
		SecretsBackend: strings.ToLower(strings.TrimSpace(v.GetString(KeySecretsBackend))),
		SessionTTL:     durations[KeySessionTTL],
		v:              v,
	}, nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Claim.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", KeyClaimMaxRetries, c.Claim.MaxRetries))
	}
	if c.Claim.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0, got %d", KeyClaimCooldown, int64(c.Claim.Cooldown/time.Second)))
	}
	if c.Claim.ErrorBackoff <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0, got %d", KeyClaimErrorBackoff, int64(c.Claim.ErrorBackoff/time.Second)))
	}
	if c.Claim.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", KeyClaimRetryDelay))
	}
	if c.Proxy.Source == credentials.SourceExternalList && strings.TrimSpace(c.Proxy.File) == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is %s", KeyProxyFile, KeyProxySource, credentials.SourceExternalList))
	}

	switch c.State.Backend {
	case BackendTOML, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", KeyStateBackend, BackendTOML, BackendSQLite, c.State.Backend))
	}

	if c.Schedule.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0, got %d", KeyConcurrency, c.Schedule.Concurrency))
	}
	if _, err := cron.ParseStandard(c.Schedule.Poll); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeySchedulePoll, err))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", KeySessionTTL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", KeyAPITimeout))
	}

	switch c.Auth.Bridge {
	case BridgeVault:
	case BridgeHTTP:
		if strings.TrimSpace(c.Auth.BridgeURL) == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s is %s", KeyAuthBridgeURL, KeyAuthBridge, BridgeHTTP))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", KeyAuthBridge, BridgeVault, BridgeHTTP, c.Auth.Bridge))
	}

	switch c.SecretsBackend {
	case SecretsChain, SecretsFile:
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", KeySecretsBackend, SecretsChain, SecretsFile, c.SecretsBackend))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s, got %q", KeyLogFormat, logging.FormatConsole, logging.FormatJSON, c.Log.Format))
	}

	return errors.Join(errs...)
}

// StatePath resolves the claim state file for the configured backend.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}

	dir := filepath.Dir(c.AccountsPath)
	if c.State.Backend == BackendSQLite {
		return filepath.Join(dir, "claims.db")
	}
	return filepath.Join(dir, "claims.toml")
}
