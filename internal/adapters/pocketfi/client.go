package pocketfi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
)

const (
	DefaultBaseURL      = "https://gm.pocketfi.org"
	DefaultTasksBaseURL = "https://bot.pocketfi.org"

	miningStatePath = "/mining/getUserMining"
	claimPath       = "/mining/claimMining"
	dailyTasksPath  = "/mining/taskExecuting"
	dailyBoostPath  = "/boost/activateDailyBoost"

	tokenHeader      = "telegramRawData"
	webAppOrigin     = "https://botui.pocketfi.org"
	maxResponseBytes = 1 << 20
	maxMessageBytes  = 256
)

type API struct {
	BaseURL      string
	TasksBaseURL string
}

// Client talks to the mining endpoints. It never retries; the scheduler owns
// the retry budget.
type Client struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.MiningAPI = (*Client)(nil)

// StatusError is a non-2xx answer that is neither an auth rejection nor a
// claim refusal.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}

	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type miningResponse struct {
	UserMining *userMining `json:"userMining"`
}

type userMining struct {
	GotAmount         float64 `json:"gotAmount"`
	MiningAmount      float64 `json:"miningAmount"`
	Speed             float64 `json:"speed"`
	DttmLastClaim     millis  `json:"dttmLastClaim"`
	DttmClaimDeadline millis  `json:"dttmClaimDeadline"`
}

type tasksResponse struct {
	Tasks struct {
		Daily []dailyTask `json:"daily"`
	} `json:"tasks"`
}

type dailyTask struct {
	Code       string `json:"code"`
	DoneAmount int    `json:"doneAmount"`
	MaxAmount  int    `json:"maxAmount"`
	CurrentDay int    `json:"currentDay"`
}

const dailyRewardCode = "dailyReward"

type boostResponse struct {
	UpdatedForDay *int `json:"updatedForDay"`
}

func (c *Client) FetchState(ctx context.Context, token string) (domain.MiningSnapshot, error) {
	var payload miningResponse
	if err := c.call(ctx, http.MethodGet, c.API.BaseURL, DefaultBaseURL, miningStatePath, token, &payload); err != nil {
		return domain.MiningSnapshot{}, fmt.Errorf("fetch mining state: %w", err)
	}
	if payload.UserMining == nil {
		return domain.MiningSnapshot{}, errors.New("fetch mining state: response missing userMining")
	}

	m := payload.UserMining
	return domain.MiningSnapshot{
		ClaimedTotal:    m.GotAmount,
		ClaimableAmount: m.MiningAmount,
		Rate:            m.Speed,
		LastClaimAt:     m.DttmLastClaim.Time(),
		DeadlineAt:      m.DttmClaimDeadline.Time(),
	}, nil
}

// SubmitClaim reports a 4xx refusal as a rejected result and everything else
// that is not a 2xx as an error.
func (c *Client) SubmitClaim(ctx context.Context, token string) (domain.ClaimResult, error) {
	err := c.call(ctx, http.MethodPost, c.API.BaseURL, DefaultBaseURL, claimPath, token, nil)
	if err == nil {
		return domain.ClaimResult{Accepted: true}, nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
		msg := statusErr.Body
		if msg == "" {
			msg = http.StatusText(statusErr.StatusCode)
		}
		return domain.ClaimResult{Accepted: false, Message: msg}, nil
	}

	return domain.ClaimResult{}, fmt.Errorf("submit claim: %w", err)
}

func (c *Client) DailyBoostAvailable(ctx context.Context, token string) (bool, error) {
	var payload tasksResponse
	if err := c.call(ctx, http.MethodGet, c.API.TasksBaseURL, DefaultTasksBaseURL, dailyTasksPath, token, &payload); err != nil {
		return false, fmt.Errorf("check daily boost: %w", err)
	}
	task, ok := dailyRewardTask(payload.Tasks.Daily)
	if !ok {
		return false, errors.New("check daily boost: response has no daily task")
	}

	return task.DoneAmount == 0, nil
}

// dailyRewardTask prefers the task coded dailyReward and falls back to the
// first daily task.
func dailyRewardTask(tasks []dailyTask) (dailyTask, bool) {
	for _, task := range tasks {
		if task.Code == dailyRewardCode {
			return task, true
		}
	}
	if len(tasks) == 0 {
		return dailyTask{}, false
	}

	return tasks[0], true
}

// ActivateDailyBoost returns the zero-based streak day the remote updated.
func (c *Client) ActivateDailyBoost(ctx context.Context, token string) (int, error) {
	var payload boostResponse
	if err := c.call(ctx, http.MethodPost, c.API.BaseURL, DefaultBaseURL, dailyBoostPath, token, &payload); err != nil {
		return 0, fmt.Errorf("activate daily boost: %w", err)
	}
	if payload.UpdatedForDay == nil {
		return 0, errors.New("activate daily boost: response missing updatedForDay")
	}

	return *payload.UpdatedForDay, nil
}

func (c *Client) call(ctx context.Context, method, baseURL, fallbackBase, path, token string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: empty session token", domain.ErrUnauthorized)
	}

	if baseURL == "" {
		baseURL = fallbackBase
	}
	endpoint, err := buildAPIURL(baseURL, path)
	if err != nil {
		return err
	}

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", webAppOrigin)
	req.Header.Set("Referer", webAppOrigin+"/")
	req.Header.Set(tokenHeader, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return &StatusError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: readMessage(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	return strings.TrimSpace(string(data))
}

func buildAPIURL(baseURL string, path string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}

// millis is a unix timestamp in milliseconds, sent either as a number or a
// numeric string.
type millis int64

func (m *millis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse millisecond timestamp %q: %w", raw, err)
	}

	*m = millis(value)
	return nil
}

func (m millis) Time() time.Time {
	if m <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(int64(m)).UTC()
}
