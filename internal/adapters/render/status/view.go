package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
	// Cooldown sizes the progress bar. Zero hides it.
	Cooldown time.Duration
}

func renderView(statuses []application.Status, opts RenderOptions, s styles) string {
	due := 0
	halted := 0
	for _, status := range statuses {
		switch {
		case status.Halted():
			halted++
		case status.Due():
			due++
		}
	}

	lines := []string{
		s.title.Render("PocketFi Claim Windows"),
		s.header.Render(fmt.Sprintf("accounts: %d  due: %d  halted: %d", len(statuses), due, halted)),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No accounts configured. Add one with `pfc account add`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, status := range statuses {
		lines = append(lines, s.section.Render(renderAccount(status, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(status application.Status, opts RenderOptions, s styles) string {
	parts := []string{
		s.account.Render(status.Account.Label()),
		windowLine(status, opts, s),
		s.detail.Render(sessionLine(status)),
	}

	if status.Halted() {
		reason := status.Window.HaltReason
		if reason == "" {
			reason = "permanent auth failure"
		}
		parts = append(parts, s.warning.Render("[halted] "+reason+" (pfc account reset "+string(status.Account.ID)+")"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func windowLine(status application.Status, opts RenderOptions, s styles) string {
	label := s.windowKey.Render("next claim:")
	if status.Window.NextEligibleAt.IsZero() {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.due.Render("never claimed, due now"))
	}

	now := opts.Now
	if now.IsZero() {
		now = status.CheckedAt
	}
	remaining := status.Window.Remaining(now)

	parts := []string{label, " "}
	if bar := renderProgressBar(remaining, opts.Cooldown, 24, s); bar != "" {
		parts = append(parts, bar, " ")
	}

	if remaining <= 0 {
		parts = append(parts, s.due.Render(fmt.Sprintf("due now (since %s)", formatClock(status.Window.NextEligibleAt, now))))
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	style := lipgloss.NewStyle().Foreground(remainingColor(remaining, opts.Cooldown))
	parts = append(parts, style.Render(fmt.Sprintf("in %s (%s)", formatRemaining(remaining), formatClock(status.Window.NextEligibleAt, now))))
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func sessionLine(status application.Status) string {
	session := "missing"
	if status.HasSession {
		session = "stored"
	}

	proxy := "direct"
	if status.Account.Proxy != "" {
		proxy = "own proxy"
	}

	return fmt.Sprintf("session: %s  network: %s", session, proxy)
}

// renderProgressBar fills with the share of the cooldown already elapsed.
func renderProgressBar(remaining, cooldown time.Duration, width int, s styles) string {
	if width <= 0 || cooldown <= 0 {
		return ""
	}

	elapsed := 1 - remaining.Seconds()/cooldown.Seconds()
	filled := int(math.Round(float64(width) * clampFraction(elapsed)))
	empty := width - filled

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d / time.Hour)
	minutes := int(math.Ceil(float64(d%time.Hour) / float64(time.Minute)))
	if minutes == 60 {
		hours++
		minutes = 0
	}
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%dh %02dm", hours, minutes)
}

func formatClock(at, now time.Time) string {
	y1, m1, d1 := now.Date()
	y2, m2, d2 := at.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return at.Format("15:04")
	}

	return at.Format("15:04 on 02 Jan")
}

// remainingColor fades from grey far from the window to bright white close to it.
func remainingColor(remaining, cooldown time.Duration) lipgloss.Color {
	if cooldown <= 0 {
		return lipgloss.Color("255")
	}

	return interpolateColor(cooldown.Seconds()-remaining.Seconds(), 0, cooldown.Seconds())
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := clampFraction((value - min) / (max - min))

	// 240..255 is the upper half of the 256-colour greyscale ramp.
	code := int(240 + 15*normalized)
	return lipgloss.Color(fmt.Sprintf("%d", code))
}
