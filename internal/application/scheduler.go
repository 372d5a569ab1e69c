package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSessionTTL = time.Hour

type SchedulerConfig struct {
	MaxClaimRetries int
	ClaimCooldown   time.Duration
	ErrorBackoff    time.Duration
	RetryDelay      time.Duration
	SessionTTL      time.Duration
	DailyBoost      bool
}

func (c SchedulerConfig) Validate() error {
	if c.MaxClaimRetries < 0 {
		return fmt.Errorf("max claim retries must be >= 0, got %d", c.MaxClaimRetries)
	}
	if c.ClaimCooldown <= 0 {
		return fmt.Errorf("claim cooldown must be positive, got %s", c.ClaimCooldown)
	}
	if c.ErrorBackoff <= 0 {
		return fmt.Errorf("error backoff must be positive, got %s", c.ErrorBackoff)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be >= 0, got %s", c.RetryDelay)
	}

	return nil
}

// Scheduler runs claim cycles. It keeps no per-account state of its own; all
// of it lives in the AccountContext handed to RunCycle and in the ClaimStore.
type Scheduler struct {
	cfg     SchedulerConfig
	store   ports.ClaimStore
	bridge  ports.AuthBridge
	proxies ports.ProxyChecker
	clock   ports.Clock
	logger  *zap.Logger
}

func NewScheduler(cfg SchedulerConfig, store ports.ClaimStore, bridge ports.AuthBridge, proxies ports.ProxyChecker, clock ports.Clock, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("claim store is nil")
	}
	if bridge == nil {
		return nil, errors.New("auth bridge is nil")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg,
		store:   store,
		bridge:  bridge,
		proxies: proxies,
		clock:   clock,
		logger:  logger,
	}, nil
}

func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// RunCycle evaluates one account once. The returned outcome is always set;
// the error is non-nil for aborted cycles, permanent auth failures,
// exhausted retries and failed persistence.
func (s *Scheduler) RunCycle(ctx context.Context, acct *AccountContext) (domain.Outcome, error) {
	if acct == nil {
		return domain.Outcome{}, errors.New("account context is nil")
	}
	if acct.API == nil {
		return domain.Outcome{AccountID: acct.Account.ID, Kind: domain.OutcomeTransportError}, fmt.Errorf("account %s: mining api is nil", acct.Account.ID)
	}

	c := &cycle{
		s:    s,
		acct: acct,
		log: s.logger.With(
			zap.String("account", string(acct.Account.ID)),
			zap.String("cycle", uuid.NewString()),
		),
	}

	outcome, err := c.run(ctx)
	outcome.AccountID = acct.Account.ID
	return outcome, err
}

type stepFunc func(ctx context.Context) (domain.CycleState, error)

type cycle struct {
	s    *Scheduler
	acct *AccountContext
	log  *zap.Logger

	window         domain.ClaimWindow
	snapshot       domain.MiningSnapshot
	refreshed      bool
	nextEligibleAt time.Time
	outcome        domain.Outcome
	// claimErr is returned after persisting when retries were exhausted.
	claimErr error
}

func (c *cycle) run(ctx context.Context) (domain.Outcome, error) {
	steps := map[domain.CycleState]stepFunc{
		domain.CycleCheckWindow:    c.checkWindow,
		domain.CycleProxyCheck:     c.checkProxy,
		domain.CycleAuthenticating: c.authenticate,
		domain.CycleFetching:       c.fetch,
		domain.CycleEvaluating:     c.evaluate,
		domain.CycleClaiming:       c.claim,
		domain.CyclePersisting:     c.persist,
	}

	state := domain.CycleCheckWindow
	for state != domain.CycleIdle {
		step, ok := steps[state]
		if !ok {
			return c.outcome, fmt.Errorf("unknown cycle state %q", state)
		}

		next, err := step(ctx)
		c.log.Debug("cycle step", zap.Stringer("state", state), zap.Stringer("next", next))
		if err != nil {
			return c.outcome, err
		}
		state = next
	}

	return c.outcome, nil
}

func (c *cycle) checkWindow(ctx context.Context) (domain.CycleState, error) {
	id := c.acct.Account.ID
	if c.acct.Halted {
		c.outcome = domain.Outcome{Kind: domain.OutcomeAuthFailedPermanent}
		return domain.CycleIdle, fmt.Errorf("account %s: %w", id, domain.ErrAccountHalted)
	}

	window, err := c.s.store.Get(ctx, id)
	if err != nil {
		return c.abort("read claim window", err)
	}
	if window.Halted {
		c.acct.Halted = true
		c.outcome = domain.Outcome{Kind: domain.OutcomeAuthFailedPermanent, Error: window.HaltReason}
		return domain.CycleIdle, fmt.Errorf("account %s: %w", id, domain.ErrAccountHalted)
	}
	c.window = window

	if remaining := window.Remaining(c.s.clock.Now()); remaining > 0 {
		c.outcome = domain.Outcome{
			Kind:           domain.OutcomeSkippedCooldown,
			Remaining:      remaining,
			NextEligibleAt: window.NextEligibleAt,
		}
		return domain.CycleIdle, nil
	}

	return domain.CycleProxyCheck, nil
}

func (c *cycle) checkProxy(ctx context.Context) (domain.CycleState, error) {
	proxy := c.acct.Credentials.Proxy
	if proxy == nil || c.s.proxies == nil {
		return domain.CycleAuthenticating, nil
	}

	ip, err := c.s.proxies.Check(ctx, *proxy)
	if err != nil {
		c.log.Warn("proxy unreachable", zap.Stringer("proxy", proxy), zap.Error(err))
		c.outcome = domain.Outcome{Kind: domain.OutcomeSkippedProxyDown, Error: err.Error()}
		return domain.CycleIdle, nil
	}

	if ip != c.acct.ExitIP {
		c.log.Info("proxy exit ip", zap.Stringer("proxy", proxy), zap.String("ip", ip))
		c.acct.ExitIP = ip
	}

	return domain.CycleAuthenticating, nil
}

func (c *cycle) authenticate(ctx context.Context) (domain.CycleState, error) {
	now := c.s.clock.Now()
	if !c.acct.Session.IsExpired(now) {
		return domain.CycleFetching, nil
	}

	token, err := c.s.bridge.Authenticate(ctx, c.acct.Account, c.acct.Credentials)
	if err != nil {
		if domain.IsPermanentAuth(err) {
			c.halt(ctx, err)
			c.outcome = domain.Outcome{Kind: domain.OutcomeAuthFailedPermanent, Error: err.Error()}
			return domain.CycleIdle, err
		}
		return c.abort("authenticate", err)
	}

	c.acct.Session = domain.Session{
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.s.cfg.SessionTTL),
	}
	c.refreshed = true
	c.log.Info("session refreshed", zap.Time("expires_at", c.acct.Session.ExpiresAt))

	return domain.CycleFetching, nil
}

func (c *cycle) fetch(ctx context.Context) (domain.CycleState, error) {
	snapshot, err := c.acct.API.FetchState(ctx, c.acct.Session.Token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.acct.Session = domain.Session{}
		}
		return c.abort("fetch mining state", err)
	}
	c.snapshot = snapshot

	if c.acct.Profile == nil || c.refreshed {
		c.acct.Profile = &domain.Profile{
			LastClaimAt: snapshot.LastClaimAt,
			DeadlineAt:  snapshot.DeadlineAt,
			FetchedAt:   c.s.clock.Now(),
		}
		c.log.Info("mining profile",
			zap.Time("last_claim_at", snapshot.LastClaimAt),
			zap.Time("claim_deadline_at", snapshot.DeadlineAt),
		)
	}

	c.log.Info("mining state",
		zap.Float64("balance", snapshot.ClaimedTotal),
		zap.Float64("available", snapshot.ClaimableAmount),
		zap.Float64("speed", snapshot.Rate),
	)

	return domain.CycleEvaluating, nil
}

func (c *cycle) evaluate(_ context.Context) (domain.CycleState, error) {
	if c.snapshot.ClaimableAmount <= 0 {
		c.outcome = domain.Outcome{Kind: domain.OutcomeNotDue, Balance: c.snapshot.ClaimedTotal}
		return domain.CycleIdle, nil
	}

	remoteEligibleAt := c.snapshot.RemoteEligibleAt(c.s.cfg.ClaimCooldown)
	if !remoteEligibleAt.IsZero() && c.s.clock.Now().Before(remoteEligibleAt) {
		c.outcome = domain.Outcome{
			Kind:           domain.OutcomeNotDue,
			Balance:        c.snapshot.ClaimedTotal,
			NextEligibleAt: remoteEligibleAt,
		}
		return domain.CycleIdle, nil
	}

	return domain.CycleClaiming, nil
}

func (c *cycle) claim(ctx context.Context) (domain.CycleState, error) {
	if c.s.cfg.DailyBoost {
		c.activateDailyBoost(ctx)
	}

	token := c.acct.Session.Token
	attempt := domain.NewClaimAttempt(c.s.cfg.MaxClaimRetries)
	var lastErr error
	for attempt.Next() {
		if err := ctx.Err(); err != nil {
			return c.abort("claim", err)
		}

		result, err := c.acct.API.SubmitClaim(ctx, token)
		if err == nil && !result.Accepted {
			err = fmt.Errorf("%w: %s", domain.ErrClaimRejected, result.Message)
		}
		if err == nil {
			c.claimed(ctx, attempt)
			return domain.CyclePersisting, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.abort("claim", errors.Join(ctxErr, err))
		}

		lastErr = err
		c.log.Warn("claim attempt failed",
			zap.Int("attempt", attempt.Number),
			zap.Int("max_attempts", attempt.MaxAttempts),
			zap.Error(err),
		)

		if !attempt.Exhausted() && c.s.cfg.RetryDelay > 0 {
			if err := sleepContext(ctx, c.s.cfg.RetryDelay); err != nil {
				return c.abort("claim", err)
			}
		}
	}

	if errors.Is(lastErr, domain.ErrUnauthorized) {
		c.acct.Session = domain.Session{}
	}
	c.nextEligibleAt = c.s.clock.Now().Add(c.s.cfg.ErrorBackoff)
	c.outcome = domain.Outcome{
		Kind:           domain.OutcomeTransportError,
		Attempts:       attempt.Number,
		NextEligibleAt: c.nextEligibleAt,
		Error:          lastErr.Error(),
	}
	c.claimErr = fmt.Errorf("account %s: claim retries exhausted after %d attempts: %w", c.acct.Account.ID, attempt.Number, lastErr)

	return domain.CyclePersisting, nil
}

func (c *cycle) claimed(ctx context.Context, attempt domain.ClaimAttempt) {
	before := c.snapshot
	balance := before.ClaimedTotal + before.ClaimableAmount

	after, err := c.acct.API.FetchState(ctx, c.acct.Session.Token)
	if err != nil {
		c.log.Warn("refresh after claim failed", zap.Error(err))
	} else {
		balance = after.ClaimedTotal
	}

	c.nextEligibleAt = c.s.clock.Now().Add(c.s.cfg.ClaimCooldown)
	c.outcome = domain.Outcome{
		Kind:           domain.OutcomeClaimed,
		Amount:         before.ClaimableAmount,
		Balance:        balance,
		Attempts:       attempt.Number,
		NextEligibleAt: c.nextEligibleAt,
	}

	c.log.Info("claim succeeded",
		zap.Float64("balance", balance),
		zap.Float64("delta", balance-before.ClaimedTotal),
		zap.Int("attempt", attempt.Number),
		zap.Duration("next_claim_in", c.s.cfg.ClaimCooldown),
	)
}

func (c *cycle) activateDailyBoost(ctx context.Context) {
	token := c.acct.Session.Token

	available, err := c.acct.API.DailyBoostAvailable(ctx, token)
	if err != nil {
		c.log.Warn("daily boost check failed", zap.Error(err))
		return
	}
	if !available {
		return
	}

	day, err := c.acct.API.ActivateDailyBoost(ctx, token)
	if err != nil {
		c.log.Warn("daily boost activation failed", zap.Error(err))
		return
	}

	c.log.Info("daily boost activated", zap.Int("day", day+1))
}

// persist is the last action of a cycle that reached a terminal claim
// outcome. It runs detached from cancellation so a finished claim is
// always recorded.
func (c *cycle) persist(ctx context.Context) (domain.CycleState, error) {
	id := c.acct.Account.ID

	if err := c.s.store.Set(context.WithoutCancel(ctx), id, c.nextEligibleAt); err != nil {
		persistErr := &domain.PersistenceError{AccountID: id, Err: err}
		c.log.Error("claim window not persisted",
			zap.String("severity", "persistence"),
			zap.Time("next_eligible_at", c.nextEligibleAt),
			zap.Error(err),
		)
		return domain.CycleIdle, errors.Join(c.claimErr, persistErr)
	}

	return domain.CycleIdle, c.claimErr
}

func (c *cycle) halt(ctx context.Context, cause error) {
	c.acct.Halted = true
	c.acct.Session = domain.Session{}

	if err := c.s.store.MarkHalted(context.WithoutCancel(ctx), c.acct.Account.ID, cause.Error()); err != nil {
		c.log.Error("halt not persisted", zap.String("severity", "persistence"), zap.Error(err))
	}
}

func (c *cycle) abort(op string, err error) (domain.CycleState, error) {
	c.outcome = domain.Outcome{Kind: domain.OutcomeTransportError, Error: err.Error()}
	return domain.CycleIdle, &domain.TransientError{Op: op, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
