package status

import (
	"strings"
	"testing"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderNow = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func statusFor(id domain.AccountID, name string, next time.Time) application.Status {
	window := domain.ClaimWindow{AccountID: id, NextEligibleAt: next}
	return application.Status{
		Account:    domain.Account{ID: id, Name: name},
		Window:     window,
		HasSession: true,
		Remaining:  window.Remaining(renderNow),
		CheckedAt:  renderNow,
	}
}

func TestRenderSingleAccountCountdown(t *testing.T) {
	output, err := Render([]application.Status{
		statusFor("acc-1", "Primary", renderNow.Add(90*time.Minute)),
	}, RenderOptions{Now: renderNow, Cooldown: 3 * time.Hour})

	require.NoError(t, err)
	assert.Contains(t, output, "PocketFi Claim Windows")
	assert.Contains(t, output, "accounts: 1  due: 0  halted: 0")
	assert.Contains(t, output, "Primary (acc-1)")
	assert.Contains(t, output, "next claim:")
	assert.Contains(t, output, "in 1h 30m (12:30)")
	assert.Contains(t, output, "["+strings.Repeat("=", 12)+strings.Repeat("-", 12)+"]")
	assert.Contains(t, output, "session: stored  network: direct")
	assert.NotContains(t, output, "[halted]")
}

func TestRenderDueAndNeverClaimed(t *testing.T) {
	never := statusFor("acc-2", "", time.Time{})
	never.HasSession = false

	output, err := Render([]application.Status{
		statusFor("acc-1", "Primary", renderNow.Add(-5*time.Minute)),
		never,
	}, RenderOptions{Now: renderNow})

	require.NoError(t, err)
	assert.Contains(t, output, "due: 2")
	assert.Contains(t, output, "due now (since 10:55)")
	assert.Contains(t, output, "never claimed, due now")
	assert.Contains(t, output, "session: missing")
	assert.NotContains(t, output, "[=", "no cooldown means no bar")
}

func TestRenderHaltedAccountGoesLast(t *testing.T) {
	halted := statusFor("acc-a", "Halted", renderNow.Add(time.Hour))
	halted.Window.Halted = true
	halted.Window.HaltReason = "user deactivated"

	output, err := Render([]application.Status{
		halted,
		statusFor("acc-b", "Waiting", renderNow.Add(2*time.Hour)),
		statusFor("acc-c", "Soon", renderNow.Add(10*time.Minute)),
	}, RenderOptions{Now: renderNow, Cooldown: 3 * time.Hour})

	require.NoError(t, err)
	assert.Contains(t, output, "halted: 1")
	assert.Contains(t, output, "[halted] user deactivated (pfc account reset acc-a)")

	soon := strings.Index(output, "Soon (acc-c)")
	waiting := strings.Index(output, "Waiting (acc-b)")
	haltedAt := strings.Index(output, "Halted (acc-a)")
	require.True(t, soon >= 0 && waiting >= 0 && haltedAt >= 0)
	assert.Less(t, soon, waiting)
	assert.Less(t, waiting, haltedAt)
}

func TestRenderNoAccounts(t *testing.T) {
	output, err := Render(nil, RenderOptions{Now: renderNow})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 0")
	assert.Contains(t, output, "No accounts configured")
}

func TestRenderOtherDayShowsDate(t *testing.T) {
	output, err := Render([]application.Status{
		statusFor("acc-1", "Primary", renderNow.Add(20*time.Hour)),
	}, RenderOptions{Now: renderNow})

	require.NoError(t, err)
	assert.Contains(t, output, "in 20h 00m (07:00 on 15 Feb)")
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 42 * time.Second, want: "42s"},
		{in: 61 * time.Second, want: "2m"},
		{in: 59*time.Minute + 30*time.Second, want: "1h 00m"},
		{in: 3 * time.Hour, want: "3h 00m"},
		{in: 2*time.Hour + 5*time.Minute, want: "2h 05m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRemaining(tt.in), tt.in.String())
	}
}

func TestRenderOutcomes(t *testing.T) {
	output := RenderOutcomes([]domain.Outcome{
		{AccountID: "acc-1", Kind: domain.OutcomeClaimed, Amount: 0.75, Balance: 13.25},
		{AccountID: "acc-2", Kind: domain.OutcomeSkippedCooldown, Remaining: 500 * time.Second},
		{AccountID: "acc-3", Kind: domain.OutcomeTransportError, Attempts: 3, Error: "status 502"},
		{AccountID: "acc-4", Kind: domain.OutcomeAuthFailedPermanent},
		{AccountID: "acc-5", Kind: domain.OutcomeNotDue},
		{AccountID: "acc-6", Kind: domain.OutcomeSkippedProxyDown},
	})

	assert.Contains(t, output, "claimed 1 of 6 accounts")
	assert.Contains(t, output, "claimed +0.7500, balance 13.2500")
	assert.Contains(t, output, "cooldown, next claim in 9m")
	assert.Contains(t, output, "failed after 3 attempts: status 502")
	assert.Contains(t, output, "halted: permanent auth failure")
	assert.Contains(t, output, "nothing to claim yet")
	assert.Contains(t, output, "proxy unreachable, skipped")
}
