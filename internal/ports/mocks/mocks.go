// Package mocks holds testify mocks for the ports interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

var (
	_ ports.ClaimStore        = (*MockClaimStore)(nil)
	_ ports.AuthBridge        = (*MockAuthBridge)(nil)
	_ ports.MiningAPI         = (*MockMiningAPI)(nil)
	_ ports.ProxyChecker      = (*MockProxyChecker)(nil)
	_ ports.AccountRepository = (*MockAccountRepository)(nil)
	_ ports.SecretStore       = (*MockSecretStore)(nil)
)

func register(t testingT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

type MockClaimStore struct {
	mock.Mock
}

func NewMockClaimStore(t testingT) *MockClaimStore {
	m := &MockClaimStore{}
	register(t, &m.Mock)
	return m
}

func (m *MockClaimStore) Get(ctx context.Context, id domain.AccountID) (domain.ClaimWindow, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ClaimWindow), args.Error(1)
}

func (m *MockClaimStore) Set(ctx context.Context, id domain.AccountID, nextEligibleAt time.Time) error {
	return m.Called(ctx, id, nextEligibleAt).Error(0)
}

func (m *MockClaimStore) MarkHalted(ctx context.Context, id domain.AccountID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockClaimStore) Reset(ctx context.Context, id domain.AccountID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClaimStore) List(ctx context.Context) ([]domain.ClaimWindow, error) {
	args := m.Called(ctx)
	windows, _ := args.Get(0).([]domain.ClaimWindow)
	return windows, args.Error(1)
}

type MockAuthBridge struct {
	mock.Mock
}

func NewMockAuthBridge(t testingT) *MockAuthBridge {
	m := &MockAuthBridge{}
	register(t, &m.Mock)
	return m
}

func (m *MockAuthBridge) Authenticate(ctx context.Context, account domain.Account, creds domain.Credentials) (string, error) {
	args := m.Called(ctx, account, creds)
	return args.String(0), args.Error(1)
}

type MockMiningAPI struct {
	mock.Mock
}

func NewMockMiningAPI(t testingT) *MockMiningAPI {
	m := &MockMiningAPI{}
	register(t, &m.Mock)
	return m
}

func (m *MockMiningAPI) FetchState(ctx context.Context, token string) (domain.MiningSnapshot, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.MiningSnapshot), args.Error(1)
}

func (m *MockMiningAPI) SubmitClaim(ctx context.Context, token string) (domain.ClaimResult, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.ClaimResult), args.Error(1)
}

func (m *MockMiningAPI) DailyBoostAvailable(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockMiningAPI) ActivateDailyBoost(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}

type MockProxyChecker struct {
	mock.Mock
}

func NewMockProxyChecker(t testingT) *MockProxyChecker {
	m := &MockProxyChecker{}
	register(t, &m.Mock)
	return m
}

func (m *MockProxyChecker) Check(ctx context.Context, proxy domain.Proxy) (string, error) {
	args := m.Called(ctx, proxy)
	return args.String(0), args.Error(1)
}

type MockAccountRepository struct {
	mock.Mock
}

func NewMockAccountRepository(t testingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]domain.Account)
	return accounts, args.Error(1)
}

func (m *MockAccountRepository) Save(ctx context.Context, account domain.Account) error {
	return m.Called(ctx, account).Error(0)
}

type MockSecretStore struct {
	mock.Mock
}

func NewMockSecretStore(t testingT) *MockSecretStore {
	m := &MockSecretStore{}
	register(t, &m.Mock)
	return m
}

func (m *MockSecretStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockSecretStore) Put(ctx context.Context, key string, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockSecretStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
