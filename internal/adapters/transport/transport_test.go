package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proxyFor turns an httptest server into an http proxy definition.
func proxyFor(t *testing.T, server *httptest.Server) domain.Proxy {
	t.Helper()

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	return domain.Proxy{Scheme: domain.ProxySchemeHTTP, Host: parsed.Hostname(), Port: port}
}

func TestNewHTTPClientSetsUserAgent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(domain.Credentials{UserAgent: "Mozilla/5.0 (Linux; Android 13)"}, time.Second)
	require.NoError(t, err)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 (Linux; Android 13)", string(body))
}

func TestNewHTTPClientKeepsExplicitUserAgent(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("User-Agent")
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(domain.Credentials{UserAgent: "default"}, time.Second)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "explicit", <-seen)
}

func TestNewHTTPClientRoutesThroughHTTPProxy(t *testing.T) {
	t.Parallel()

	proxiedHost := make(chan string, 1)
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxiedHost <- r.Host
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(proxyServer.Close)

	p := proxyFor(t, proxyServer)
	client, err := NewHTTPClient(domain.Credentials{Proxy: &p}, time.Second)
	require.NoError(t, err)

	resp, err := client.Get("http://gm.pocketfi.invalid/mining/getUserMining")
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "gm.pocketfi.invalid", <-proxiedHost)
}

func TestNewHTTPClientBuildsSOCKS5Transport(t *testing.T) {
	t.Parallel()

	p := domain.Proxy{Scheme: domain.ProxySchemeSOCKS5, Host: "127.0.0.1", Port: 1080, Username: "user", Password: "pass"}
	client, err := NewHTTPClient(domain.Credentials{Proxy: &p}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)
	assert.NotNil(t, tr.DialContext)
}

func TestNewHTTPClientRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	p := domain.Proxy{Scheme: "ftp", Host: "127.0.0.1", Port: 21}
	_, err := NewHTTPClient(domain.Credentials{Proxy: &p}, time.Second)
	require.ErrorIs(t, err, domain.ErrInvalidProxy)
}

func TestProxyCheckerReturnsOrigin(t *testing.T) {
	t.Parallel()

	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ip", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"origin":"203.0.113.7"}`))
	}))
	t.Cleanup(proxyServer.Close)

	checker := ProxyChecker{CheckURL: "http://httpbin.invalid/ip", Timeout: time.Second}
	ip, err := checker.Check(context.Background(), proxyFor(t, proxyServer))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestProxyCheckerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusProxyAuthRequired)
			},
			wantErr: "status 407",
		},
		{
			name: "empty json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantErr: "no address",
		},
		{
			name: "slow proxy",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			wantErr: "check proxy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proxyServer := httptest.NewServer(tt.handler)
			t.Cleanup(proxyServer.Close)

			checker := ProxyChecker{CheckURL: "http://httpbin.invalid/ip", Timeout: 50 * time.Millisecond}
			_, err := checker.Check(context.Background(), proxyFor(t, proxyServer))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseExitIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{body: `{"origin":"198.51.100.1"}`, want: "198.51.100.1"},
		{body: `{"ip":"198.51.100.2"}`, want: "198.51.100.2"},
		{body: "198.51.100.3\n", want: "198.51.100.3"},
		{body: "<html>blocked</html>", wantErr: true},
		{body: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseExitIP([]byte(tt.body))
		if tt.wantErr {
			assert.Error(t, err, tt.body)
			continue
		}
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, got)
	}
}
