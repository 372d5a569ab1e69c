package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

const (
	DefaultCheckURL     = "https://httpbin.org/ip"
	DefaultCheckTimeout = 5 * time.Second
	maxCheckBytes       = 64 << 10
)

// ProxyChecker asks an echo service which address a request through the proxy
// arrived from.
type ProxyChecker struct {
	CheckURL string
	Timeout  time.Duration
}

var _ ports.ProxyChecker = ProxyChecker{}

type ipResponse struct {
	Origin string `json:"origin"`
	IP     string `json:"ip"`
}

func (c ProxyChecker) Check(ctx context.Context, p domain.Proxy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	checkURL := c.CheckURL
	if checkURL == "" {
		checkURL = DefaultCheckURL
	}

	client, err := NewHTTPClient(domain.Credentials{Proxy: &p}, timeout)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return "", fmt.Errorf("create proxy check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("check proxy %s: %w", p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("check proxy %s: status %d", p, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCheckBytes))
	if err != nil {
		return "", fmt.Errorf("read proxy check response: %w", err)
	}

	return parseExitIP(body)
}

// parseExitIP accepts {"origin": ...}, {"ip": ...} or a bare address.
func parseExitIP(body []byte) (string, error) {
	var payload ipResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Origin != "":
			return payload.Origin, nil
		case payload.IP != "":
			return payload.IP, nil
		}
		return "", errors.New("proxy check response has no address")
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" || strings.ContainsAny(ip, " \n{<") {
		return "", errors.New("proxy check response is not an address")
	}

	return ip, nil
}
