package webview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

const (
	authenticatePath = "/authenticate"
	maxBridgeBytes   = 1 << 20
)

// HTTPBridge delegates the Telegram handshake to a sidecar that owns the
// user sessions. 401, 403 and 410 from the sidecar mean the session is gone.
type HTTPBridge struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.AuthBridge = HTTPBridge{}

type authenticateRequest struct {
	AccountID string `json:"account_id"`
	Bot       string `json:"bot"`
	URL       string `json:"url"`
	Platform  string `json:"platform"`
	Proxy     string `json:"proxy,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type authenticateResponse struct {
	InitData string `json:"init_data"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

func (b HTTPBridge) Authenticate(ctx context.Context, account domain.Account, creds domain.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	endpoint, err := b.endpoint()
	if err != nil {
		return "", err
	}

	payload := authenticateRequest{
		AccountID: string(account.ID),
		Bot:       BotUsername,
		URL:       WebAppURL,
		Platform:  "android",
		UserAgent: creds.UserAgent,
	}
	if creds.Proxy != nil {
		payload.Proxy = creds.Proxy.URL().String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode authenticate request: %w", err)
	}

	requestCtx, cancel := b.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create authenticate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("request web view: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded authenticateResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBridgeBytes)).Decode(&decoded)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
		return "", &domain.PermanentAuthError{
			AccountID: account.ID,
			Reason:    bridgeReason(resp.StatusCode, decoded.Error),
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("request web view: %s", bridgeReason(resp.StatusCode, decoded.Error))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode authenticate response: %w", decodeErr)
	}

	raw := decoded.InitData
	if raw == "" {
		raw = decoded.URL
	}
	token, err := ExtractInitData(raw)
	if err != nil {
		return "", fmt.Errorf("authenticate response: %w", err)
	}

	return token, nil
}

func (b HTTPBridge) endpoint() (string, error) {
	if strings.TrimSpace(b.BaseURL) == "" {
		return "", errors.New("auth bridge url is required")
	}

	parsed, err := url.Parse(b.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse auth bridge url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("auth bridge url must use http or https")
	}

	return parsed.JoinPath(authenticatePath).String(), nil
}

func (b HTTPBridge) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b HTTPBridge) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := b.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func bridgeReason(status int, message string) string {
	if message == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, message)
}
