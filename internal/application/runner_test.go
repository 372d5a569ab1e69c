package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	"github.com/bnema/pocketfi-claimer/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type credentialsFunc func(ctx context.Context, account domain.Account) (domain.Credentials, error)

func (f credentialsFunc) Credentials(ctx context.Context, account domain.Account) (domain.Credentials, error) {
	return f(ctx, account)
}

func directCredentials() ports.CredentialProvider {
	return credentialsFunc(func(_ context.Context, account domain.Account) (domain.Credentials, error) {
		return domain.Credentials{UserAgent: "ua-" + string(account.ID)}, nil
	})
}

type runnerFixture struct {
	clock    *stubClock
	store    *mocks.MockClaimStore
	bridge   *mocks.MockAuthBridge
	accounts *mocks.MockAccountRepository
	apis     map[domain.AccountID]*mocks.MockMiningAPI
	built    int
	logs     *observer.ObservedLogs
	runner   *Runner
}

func newRunnerFixture(t *testing.T, cfg RunnerConfig, ids ...domain.AccountID) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		clock:    &stubClock{now: time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)},
		store:    mocks.NewMockClaimStore(t),
		bridge:   mocks.NewMockAuthBridge(t),
		accounts: mocks.NewMockAccountRepository(t),
		apis:     map[domain.AccountID]*mocks.MockMiningAPI{},
	}

	accounts := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, domain.Account{ID: id})
		f.apis[id] = mocks.NewMockMiningAPI(t)
	}
	f.accounts.On("List", mockAnyContext()).Return(accounts, nil)

	scheduler, err := NewScheduler(defaultSchedulerConfig(), f.store, f.bridge, nil, f.clock, zap.NewNop())
	require.NoError(t, err)

	factory := func(creds domain.Credentials) (ports.MiningAPI, error) {
		f.built++
		id := domain.AccountID(creds.UserAgent[len("ua-"):])
		return f.apis[id], nil
	}

	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs
	f.runner = NewRunner(cfg, scheduler, f.accounts, directCredentials(), factory, zap.New(core))
	return f
}

func TestRunnerRunOnceReturnsOutcomesInAccountOrder(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{Concurrency: 2}, "b-acc", "a-acc")
	now := f.clock.Now()

	f.store.On("Get", mockAnyContext(), domain.AccountID("a-acc")).Return(domain.ClaimWindow{NextEligibleAt: now.Add(time.Minute)}, nil).Once()
	f.store.On("Get", mockAnyContext(), domain.AccountID("b-acc")).Return(domain.ClaimWindow{}, nil).Once()
	f.bridge.On("Authenticate", mockAnyContext(), domain.Account{ID: "b-acc"}, mock.Anything).Return(testToken, nil).Once()
	f.apis["b-acc"].On("FetchState", mockAnyContext(), testToken).Return(domain.MiningSnapshot{}, nil).Once()

	outcomes, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, domain.AccountID("a-acc"), outcomes[0].AccountID)
	assert.Equal(t, domain.OutcomeSkippedCooldown, outcomes[0].Kind)
	assert.Equal(t, domain.AccountID("b-acc"), outcomes[1].AccountID)
	assert.Equal(t, domain.OutcomeNotDue, outcomes[1].Kind)
}

func TestRunnerRunOnceJoinsCycleErrors(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{}, "acc-1", "acc-2")
	storeErr := errors.New("state file corrupt")

	f.store.On("Get", mockAnyContext(), domain.AccountID("acc-1")).Return(domain.ClaimWindow{}, storeErr).Once()
	f.store.On("Get", mockAnyContext(), domain.AccountID("acc-2")).Return(domain.ClaimWindow{NextEligibleAt: f.clock.Now().Add(time.Hour)}, nil).Once()

	outcomes, err := f.runner.RunOnce(context.Background())
	require.ErrorIs(t, err, storeErr)
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.OutcomeTransportError, outcomes[0].Kind)
	assert.Equal(t, domain.OutcomeSkippedCooldown, outcomes[1].Kind, "one account failing does not stop the others")
}

func TestRunnerPrepareKeepsContextsAcrossPasses(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{}, "acc-1")

	first, err := f.runner.Prepare(context.Background())
	require.NoError(t, err)
	second, err := f.runner.Prepare(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, 1, f.built)
}

func TestRunnerPrepareFiltersAccounts(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{Only: []domain.AccountID{"acc-2"}}, "acc-1", "acc-2", "acc-3")

	accts, err := f.runner.Prepare(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, domain.AccountID("acc-2"), accts[0].Account.ID)
}

func TestRunnerRunOnceSkipsAccountWithBrokenCredentials(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{}, "a-good", "b-bad")
	f.runner.creds = credentialsFunc(func(_ context.Context, account domain.Account) (domain.Credentials, error) {
		if account.ID == "b-bad" {
			return domain.Credentials{}, errors.New("proxy list empty")
		}
		return domain.Credentials{UserAgent: "ua-" + string(account.ID)}, nil
	})
	f.store.On("Get", mockAnyContext(), domain.AccountID("a-good")).Return(domain.ClaimWindow{NextEligibleAt: f.clock.Now().Add(time.Hour)}, nil).Once()

	outcomes, err := f.runner.RunOnce(context.Background())
	require.ErrorContains(t, err, "account b-bad: resolve credentials: proxy list empty")
	require.Len(t, outcomes, 2)

	assert.Equal(t, domain.AccountID("a-good"), outcomes[0].AccountID)
	assert.Equal(t, domain.OutcomeSkippedCooldown, outcomes[0].Kind, "healthy account still runs")
	assert.Equal(t, domain.AccountID("b-bad"), outcomes[1].AccountID)
	assert.Equal(t, domain.OutcomeTransportError, outcomes[1].Kind)
	assert.Contains(t, outcomes[1].Error, "proxy list empty")

	failed := f.logs.FilterMessage("prepare account failed").FilterField(zap.String("account", "b-bad"))
	assert.Equal(t, 1, failed.Len())
}

func TestRunnerPrepareLeavesOutBrokenAccounts(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{}, "a-good", "b-bad")
	f.runner.apiFactory = func(creds domain.Credentials) (ports.MiningAPI, error) {
		if creds.UserAgent == "ua-b-bad" {
			return nil, errors.New("invalid proxy url")
		}
		return f.apis["a-good"], nil
	}

	accts, err := f.runner.Prepare(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, domain.AccountID("a-good"), accts[0].Account.ID)
	assert.Equal(t, 1, f.logs.FilterMessage("prepare account failed").Len())
}

func TestRunnerRunStopsWhenEveryAccountHalts(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{PollSpec: "@every 1h"}, "acc-1")
	authErr := &domain.PermanentAuthError{AccountID: "acc-1", Reason: "auth key unregistered"}

	f.store.On("Get", mockAnyContext(), domain.AccountID("acc-1")).Return(domain.ClaimWindow{}, nil).Once()
	f.bridge.On("Authenticate", mockAnyContext(), domain.Account{ID: "acc-1"}, mock.Anything).Return("", authErr).Once()
	f.store.On("MarkHalted", mockAnyContext(), domain.AccountID("acc-1"), authErr.Error()).Return(nil).Once()

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveAccounts)
}

func TestRunnerRunReturnsWhenContextDone(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{PollSpec: "@every 1h"}, "acc-1")

	f.store.On("Get", mockAnyContext(), domain.AccountID("acc-1")).Return(domain.ClaimWindow{NextEligibleAt: f.clock.Now().Add(time.Hour)}, nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}

func TestRunnerRunWithoutAccounts(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveAccounts)
}

func TestRunnerRejectsInvalidPollSpec(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{PollSpec: "every now and then"}, "acc-1")

	err := f.runner.Run(context.Background())
	assert.ErrorContains(t, err, "schedule account acc-1")
}
