package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/logging"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollSpec    = "@every 1m"
	DefaultConcurrency = 4
)

var ErrNoActiveAccounts = errors.New("no active accounts left to schedule")

type RunnerConfig struct {
	PollSpec    string
	Concurrency int
	// Only restricts the runner to these accounts when non-empty.
	Only []domain.AccountID
}

// Runner owns the per-account contexts and invokes the scheduler for them,
// either as a single pass or on every polling tick.
type Runner struct {
	cfg        RunnerConfig
	scheduler  *Scheduler
	accounts   ports.AccountRepository
	creds      ports.CredentialProvider
	apiFactory ports.MiningAPIFactory
	logger     *zap.Logger

	mu       sync.Mutex
	contexts map[domain.AccountID]*AccountContext
}

func NewRunner(cfg RunnerConfig, scheduler *Scheduler, accounts ports.AccountRepository, creds ports.CredentialProvider, apiFactory ports.MiningAPIFactory, logger *zap.Logger) *Runner {
	if cfg.PollSpec == "" {
		cfg.PollSpec = DefaultPollSpec
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		cfg:        cfg,
		scheduler:  scheduler,
		accounts:   accounts,
		creds:      creds,
		apiFactory: apiFactory,
		logger:     logger,
		contexts:   map[domain.AccountID]*AccountContext{},
	}
}

// Prepare loads accounts and builds a context for every account that does
// not have one yet. Existing contexts keep their cached session. Accounts
// whose credentials or client cannot be built are logged and left out.
func (r *Runner) Prepare(ctx context.Context) ([]*AccountContext, error) {
	slots, err := r.prepare(ctx)
	if err != nil {
		return nil, err
	}

	prepared := make([]*AccountContext, 0, len(slots))
	for _, slot := range slots {
		if slot.err == nil {
			prepared = append(prepared, slot.acct)
		}
	}

	return prepared, nil
}

type accountSlot struct {
	id   domain.AccountID
	acct *AccountContext
	err  error
}

func (r *Runner) prepare(ctx context.Context) ([]accountSlot, error) {
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts = r.filter(accounts)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	r.mu.Lock()
	defer r.mu.Unlock()

	slots := make([]accountSlot, 0, len(accounts))
	for _, account := range accounts {
		acct, err := r.contextFor(ctx, account)
		if err != nil {
			r.logger.Error("prepare account failed", zap.String("account", string(account.ID)), zap.Error(err))
		}
		slots = append(slots, accountSlot{id: account.ID, acct: acct, err: err})
	}

	return slots, nil
}

// contextFor must be called with r.mu held.
func (r *Runner) contextFor(ctx context.Context, account domain.Account) (*AccountContext, error) {
	if existing, ok := r.contexts[account.ID]; ok {
		return existing, nil
	}

	creds, err := r.creds.Credentials(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("account %s: resolve credentials: %w", account.ID, err)
	}

	api, err := r.apiFactory(creds)
	if err != nil {
		return nil, fmt.Errorf("account %s: build mining api client: %w", account.ID, err)
	}

	acct := NewAccountContext(account, creds, api)
	r.contexts[account.ID] = acct
	return acct, nil
}

// RunOnce runs one cycle for every account, in parallel up to the configured
// concurrency. Outcomes are returned in account order. An account that could
// not be prepared is reported as a transport error without running a cycle.
func (r *Runner) RunOnce(ctx context.Context) ([]domain.Outcome, error) {
	slots, err := r.prepare(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.Outcome, len(slots))
	errs := make([]error, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, slot := range slots {
		if slot.err != nil {
			outcomes[i] = domain.Outcome{
				AccountID: slot.id,
				Kind:      domain.OutcomeTransportError,
				Error:     slot.err.Error(),
			}
			errs[i] = slot.err
			continue
		}
		g.Go(func() error {
			outcomes[i], errs[i] = r.runCycle(gctx, slot.acct)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}

// Run performs an initial pass and then invokes each account's cycle on
// every polling tick until ctx is done. Accounts that fail authentication
// permanently are unscheduled.
func (r *Runner) Run(ctx context.Context) error {
	accts, err := r.Prepare(ctx)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		return ErrNoActiveAccounts
	}

	c := cron.New(
		cron.WithLogger(logging.NewCronLogger(r.logger)),
		cron.WithChain(cron.Recover(logging.NewCronLogger(r.logger)), cron.SkipIfStillRunning(logging.NewCronLogger(r.logger))),
	)

	var mu sync.Mutex
	entries := make(map[domain.AccountID]cron.EntryID, len(accts))
	allHalted := make(chan struct{})
	unschedule := func(id domain.AccountID) {
		mu.Lock()
		defer mu.Unlock()

		entryID, ok := entries[id]
		if !ok {
			return
		}
		c.Remove(entryID)
		delete(entries, id)
		r.logger.Warn("account unscheduled", zap.String("account", string(id)))
		if len(entries) == 0 {
			close(allHalted)
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, acct := range accts {
		// The entry is registered before the initial pass so a halt during
		// that pass can unschedule it.
		entryID, err := c.AddFunc(r.cfg.PollSpec, func() {
			if _, err := r.runCycle(jobCtx, acct); isHaltError(err) {
				unschedule(acct.Account.ID)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule account %s: %w", acct.Account.ID, err)
		}
		mu.Lock()
		entries[acct.Account.ID] = entryID
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(jobCtx)
	g.SetLimit(r.cfg.Concurrency)
	for _, acct := range accts {
		g.Go(func() error {
			if _, err := r.runCycle(gctx, acct); isHaltError(err) {
				unschedule(acct.Account.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	remaining := len(entries)
	mu.Unlock()
	if remaining == 0 {
		return ErrNoActiveAccounts
	}

	c.Start()
	r.logger.Info("scheduler started", zap.Int("accounts", remaining), zap.String("poll", r.cfg.PollSpec))

	var runErr error
	select {
	case <-ctx.Done():
	case <-allHalted:
		runErr = ErrNoActiveAccounts
	}

	cancel()
	<-c.Stop().Done()
	r.logger.Info("scheduler stopped")

	return runErr
}

func (r *Runner) runCycle(ctx context.Context, acct *AccountContext) (domain.Outcome, error) {
	outcome, err := r.scheduler.RunCycle(ctx, acct)
	r.report(outcome, err)
	return outcome, err
}

func (r *Runner) report(outcome domain.Outcome, err error) {
	fields := []zap.Field{
		zap.String("account", string(outcome.AccountID)),
		zap.String("outcome", string(outcome.Kind)),
	}

	switch outcome.Kind {
	case domain.OutcomeClaimed:
		fields = append(fields, zap.Float64("amount", outcome.Amount), zap.Float64("balance", outcome.Balance), zap.Time("next_eligible_at", outcome.NextEligibleAt))
	case domain.OutcomeSkippedCooldown:
		fields = append(fields, zap.Int64("remaining_seconds", outcome.RemainingSeconds()))
	case domain.OutcomeTransportError:
		if outcome.Attempts > 0 {
			fields = append(fields, zap.Int("attempts", outcome.Attempts), zap.Time("next_eligible_at", outcome.NextEligibleAt))
		}
	}

	switch {
	case err == nil:
		r.logger.Info("cycle finished", fields...)
	case domain.IsPersistence(err):
		r.logger.Error("cycle finished without persisting", append(fields, zap.String("severity", "persistence"), zap.Error(err))...)
	case isHaltError(err):
		r.logger.Error("cycle halted account", append(fields, zap.Error(err))...)
	default:
		r.logger.Warn("cycle aborted", append(fields, zap.Error(err))...)
	}
}

func (r *Runner) filter(accounts []domain.Account) []domain.Account {
	if len(r.cfg.Only) == 0 {
		return accounts
	}

	only := make(map[domain.AccountID]struct{}, len(r.cfg.Only))
	for _, id := range r.cfg.Only {
		only[id] = struct{}{}
	}

	filtered := make([]domain.Account, 0, len(only))
	for _, account := range accounts {
		if _, ok := only[account.ID]; ok {
			filtered = append(filtered, account)
		}
	}

	return filtered
}

func isHaltError(err error) bool {
	return domain.IsPermanentAuth(err) || errors.Is(err, domain.ErrAccountHalted)
}
