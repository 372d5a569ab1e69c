package webview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	initData = "query_id=AAHdF6IQAAAAAN0XohDhrOrc&user=%7B%22id%22%3A279058397%7D&auth_date=1760000000&hash=c501b71e775f74ce10e377dea85a7ea24ecd640b223ea86dfe453e0eaed2e2b2"
	webView  = "https://botui.pocketfi.org/mining/#tgWebAppData=query_id%3DAAHdF6IQAAAAAN0XohDhrOrc%26user%3D%257B%2522id%2522%253A279058397%257D%26auth_date%3D1760000000%26hash%3Dc501b71e775f74ce10e377dea85a7ea24ecd640b223ea86dfe453e0eaed2e2b2&tgWebAppVersion=7.10&tgWebAppPlatform=android"
)

func TestExtractInitData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr string
	}{
		{name: "raw init data", raw: initData, want: initData},
		{name: "web view url", raw: webView, want: initData},
		{name: "surrounding whitespace", raw: "  " + initData + "\n", want: initData},
		{name: "fragment without version", raw: "https://x/#tgWebAppData=auth_date%3D1%26hash%3Dab", want: "auth_date=1&hash=ab"},
		{name: "empty", raw: " ", wantErr: "empty value"},
		{name: "missing hash", raw: "query_id=1&auth_date=1760000000", wantErr: "missing hash"},
		{name: "bad escape", raw: "https://x/#tgWebAppData=%zz&tgWebAppVersion=7", wantErr: "invalid web app init data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractInitData(tt.raw)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidInitData)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVaultBridgeReturnsStoredInitData(t *testing.T) {
	t.Parallel()

	secrets := mocks.NewMockSecretStore(t)
	secrets.On("Get", mock.Anything, "pocketfi://acc-1/session").Return(webView, nil).Once()

	token, err := VaultBridge{Secrets: secrets}.Authenticate(context.Background(), domain.Account{ID: "acc-1", SessionRef: "pocketfi://acc-1/session"}, domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, initData, token)
}

func TestVaultBridgePermanentFailures(t *testing.T) {
	t.Parallel()

	t.Run("no session ref", func(t *testing.T) {
		t.Parallel()

		_, err := VaultBridge{Secrets: mocks.NewMockSecretStore(t)}.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{})
		require.True(t, domain.IsPermanentAuth(err))
		assert.ErrorContains(t, err, "no session stored")
	})

	t.Run("secret missing", func(t *testing.T) {
		t.Parallel()

		secrets := mocks.NewMockSecretStore(t)
		secrets.On("Get", mock.Anything, "pocketfi://acc-1/session").Return("", domain.ErrSecretNotFound).Once()

		_, err := VaultBridge{Secrets: secrets}.Authenticate(context.Background(), domain.Account{ID: "acc-1", SessionRef: "pocketfi://acc-1/session"}, domain.Credentials{})
		require.True(t, domain.IsPermanentAuth(err))
		assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	})

	t.Run("garbage secret", func(t *testing.T) {
		t.Parallel()

		secrets := mocks.NewMockSecretStore(t)
		secrets.On("Get", mock.Anything, "pocketfi://acc-1/session").Return("hello", nil).Once()

		_, err := VaultBridge{Secrets: secrets}.Authenticate(context.Background(), domain.Account{ID: "acc-1", SessionRef: "pocketfi://acc-1/session"}, domain.Credentials{})
		require.True(t, domain.IsPermanentAuth(err))
		assert.ErrorIs(t, err, ErrInvalidInitData)
	})
}

func TestVaultBridgeStoreOutageIsTransient(t *testing.T) {
	t.Parallel()

	secrets := mocks.NewMockSecretStore(t)
	secrets.On("Get", mock.Anything, "pocketfi://acc-1/session").Return("", errors.New("gpg agent not running")).Once()

	_, err := VaultBridge{Secrets: secrets}.Authenticate(context.Background(), domain.Account{ID: "acc-1", SessionRef: "pocketfi://acc-1/session"}, domain.Credentials{})
	require.Error(t, err)
	assert.False(t, domain.IsPermanentAuth(err))
	assert.ErrorContains(t, err, "read session secret")
}

func TestHTTPBridgeSendsAccountAndProxy(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bridge/authenticate", r.URL.Path)

		var req authenticateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acc-1", req.AccountID)
		assert.Equal(t, BotUsername, req.Bot)
		assert.Equal(t, WebAppURL, req.URL)
		assert.Equal(t, "socks5://u:p@10.0.0.1:1080", req.Proxy)
		assert.Equal(t, "ua", req.UserAgent)

		_ = json.NewEncoder(w).Encode(authenticateResponse{URL: webView})
	}))
	t.Cleanup(server.Close)

	proxy := domain.Proxy{Scheme: domain.ProxySchemeSOCKS5, Host: "10.0.0.1", Port: 1080, Username: "u", Password: "p"}
	bridge := HTTPBridge{BaseURL: server.URL + "/bridge", HTTPClient: server.Client()}

	token, err := bridge.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{Proxy: &proxy, UserAgent: "ua"})
	require.NoError(t, err)
	assert.Equal(t, initData, token)
}

func TestHTTPBridgeStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		wantErr   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"AUTH_KEY_UNREGISTERED"}`, permanent: true, wantErr: "AUTH_KEY_UNREGISTERED"},
		{name: "forbidden", status: http.StatusForbidden, permanent: true, wantErr: "status 403"},
		{name: "gone", status: http.StatusGone, body: `{"error":"USER_DEACTIVATED"}`, permanent: true, wantErr: "USER_DEACTIVATED"},
		{name: "flood wait", status: http.StatusTooManyRequests, body: `{"error":"FLOOD_WAIT_30"}`, wantErr: "FLOOD_WAIT_30"},
		{name: "server error", status: http.StatusInternalServerError, wantErr: "status 500"},
		{name: "empty payload", status: http.StatusOK, body: `{}`, wantErr: "empty value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			_, err := HTTPBridge{BaseURL: server.URL, HTTPClient: server.Client()}.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, domain.IsPermanentAuth(err))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestHTTPBridgeTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	bridge := HTTPBridge{BaseURL: server.URL, HTTPClient: server.Client(), RequestTimeout: 20 * time.Millisecond}
	_, err := bridge.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{})
	require.Error(t, err)
	assert.False(t, domain.IsPermanentAuth(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPBridgeRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := HTTPBridge{}.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{})
	assert.ErrorContains(t, err, "auth bridge url is required")

	_, err = HTTPBridge{BaseURL: "unix:///tmp/bridge.sock"}.Authenticate(context.Background(), domain.Account{ID: "acc-1"}, domain.Credentials{})
	assert.ErrorContains(t, err, "http or https")
}
