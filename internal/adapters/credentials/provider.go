package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

type Source string

const (
	SourceNone          Source = "none"
	SourceExternalList  Source = "external-list"
	SourceExternalStore Source = "external-store"
)

var ErrEmptyProxyList = errors.New("proxy list empty")

// ParseSource maps a config value to a Source. An empty value means none.
func ParseSource(raw string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SourceNone:
		return SourceNone, nil
	case SourceExternalList:
		return SourceExternalList, nil
	case SourceExternalStore:
		return SourceExternalStore, nil
	default:
		return "", fmt.Errorf("unknown proxy source %q (want none, external-list or external-store)", raw)
	}
}

// Android WebView user agents handed to accounts that do not pin their own.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Linux; Android 14; Pixel 8 Build/UQ1A.240205.004; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/122.0.6261.119 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S911B Build/TP1A.220624.014; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/121.0.6167.178 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; 2211133G Build/TKQ1.220905.001; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/120.0.6099.230 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 12; CPH2307 Build/SKQ1.211019.001; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/119.0.6045.163 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; SM-A546B Build/UP1A.231005.007; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/122.0.6261.90 Mobile Safari/537.36",
}

type Config struct {
	Source    Source
	ProxyFile string
}

// Provider resolves the proxy and user agent an account runs with.
// With external-list, proxies from the file are dealt to accounts in
// account id order, wrapping around when there are more accounts than
// proxies.
type Provider struct {
	cfg      Config
	accounts ports.AccountRepository

	mu      sync.Mutex
	proxies []domain.Proxy
	loaded  bool
}

var _ ports.CredentialProvider = (*Provider)(nil)

func NewProvider(cfg Config, accounts ports.AccountRepository) *Provider {
	if cfg.Source == "" {
		cfg.Source = SourceNone
	}

	return &Provider{cfg: cfg, accounts: accounts}
}

func (p *Provider) Credentials(ctx context.Context, account domain.Account) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	creds := domain.Credentials{UserAgent: userAgentFor(account)}

	switch p.cfg.Source {
	case SourceNone:
		return creds, nil
	case SourceExternalStore:
		if strings.TrimSpace(account.Proxy) == "" {
			return creds, nil
		}
		proxy, err := domain.ParseProxy(account.Proxy)
		if err != nil {
			return domain.Credentials{}, err
		}
		creds.Proxy = &proxy
		return creds, nil
	case SourceExternalList:
		proxy, err := p.assignFromList(ctx, account.ID)
		if err != nil {
			return domain.Credentials{}, err
		}
		creds.Proxy = &proxy
		return creds, nil
	default:
		return domain.Credentials{}, fmt.Errorf("unknown proxy source %q", p.cfg.Source)
	}
}

func (p *Provider) assignFromList(ctx context.Context, id domain.AccountID) (domain.Proxy, error) {
	proxies, err := p.loadProxies()
	if err != nil {
		return domain.Proxy{}, err
	}

	accounts, err := p.accounts.List(ctx)
	if err != nil {
		return domain.Proxy{}, fmt.Errorf("list accounts: %w", err)
	}
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, string(account.ID))
	}
	sort.Strings(ids)

	index := sort.SearchStrings(ids, string(id))
	if index >= len(ids) || ids[index] != string(id) {
		return domain.Proxy{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}

	return proxies[index%len(proxies)], nil
}

func (p *Provider) loadProxies() ([]domain.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.proxies, nil
	}

	proxies, err := ReadProxyFile(p.cfg.ProxyFile)
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyProxyList, p.cfg.ProxyFile)
	}

	p.proxies = proxies
	p.loaded = true
	return proxies, nil
}

// ReadProxyFile parses one proxy per line. Blank lines and lines starting
// with # are skipped.
func ReadProxyFile(path string) ([]domain.Proxy, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("proxy file is not configured")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var proxies []domain.Proxy
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		proxy, err := domain.ParseProxy(line)
		if err != nil {
			return nil, fmt.Errorf("proxy file line %d: %w", lineNo, err)
		}
		proxies = append(proxies, proxy)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}

	return proxies, nil
}

// userAgentFor keeps a stable agent per account across restarts.
func userAgentFor(account domain.Account) string {
	if ua := strings.TrimSpace(account.UserAgent); ua != "" {
		return ua
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(account.ID))
	return defaultUserAgents[h.Sum32()%uint32(len(defaultUserAgents))]
}
