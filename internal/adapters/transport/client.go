package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"golang.org/x/net/proxy"
)

const (
	dialTimeout         = 30 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	DefaultTimeout      = 15 * time.Second
)

// NewHTTPClient builds a client that routes through creds.Proxy, when set, and
// stamps creds.UserAgent on every request that does not carry one.
func NewHTTPClient(creds domain.Credentials, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr, err := newTransport(creds.Proxy)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = tr
	if creds.UserAgent != "" {
		rt = &userAgentTransport{base: tr, userAgent: creds.UserAgent}
	}

	return &http.Client{Timeout: timeout, Transport: rt}, nil
}

func newTransport(p *domain.Proxy) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: dialTimeout}
	tr := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	if p == nil {
		return tr, nil
	}

	switch p.Scheme {
	case domain.ProxySchemeHTTP, domain.ProxySchemeHTTPS:
		tr.Proxy = http.ProxyURL(p.URL())
	case domain.ProxySchemeSOCKS5:
		var auth *proxy.Auth
		if p.Username != "" {
			auth = &proxy.Auth{User: p.Username, Password: p.Password}
		}
		socks, err := proxy.SOCKS5("tcp", p.Addr(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("build socks5 dialer for %s: %w", p, err)
		}
		tr.DialContext = contextDialer(socks)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidProxy, p.Scheme)
	}

	return tr, nil
}

func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}

	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
