package status

import (
	"fmt"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// RenderOutcomes prints one line per cycle outcome of a claim pass.
func RenderOutcomes(outcomes []domain.Outcome) string {
	s := newStyles()

	claimed := 0
	lines := make([]string, 0, len(outcomes)+1)
	for _, outcome := range outcomes {
		if outcome.Kind == domain.OutcomeClaimed {
			claimed++
		}
		lines = append(lines, outcomeLine(outcome, s))
	}

	header := s.header.Render(fmt.Sprintf("claimed %d of %d accounts", claimed, len(outcomes)))
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{header}, lines...)...)
}

func outcomeLine(o domain.Outcome, s styles) string {
	id := s.account.Render(string(o.AccountID))

	var detail string
	switch o.Kind {
	case domain.OutcomeClaimed:
		detail = s.claimed.Render(fmt.Sprintf("claimed +%.4f, balance %.4f", o.Amount, o.Balance))
	case domain.OutcomeSkippedCooldown:
		detail = s.skipped.Render("cooldown, next claim in " + formatRemaining(o.Remaining))
	case domain.OutcomeNotDue:
		detail = s.skipped.Render("nothing to claim yet")
	case domain.OutcomeSkippedProxyDown:
		detail = s.warning.Render("proxy unreachable, skipped")
	case domain.OutcomeAuthFailedPermanent:
		detail = s.warning.Render("halted: permanent auth failure")
	case domain.OutcomeTransportError:
		msg := "transport error"
		if o.Attempts > 0 {
			msg = fmt.Sprintf("failed after %d attempts", o.Attempts)
		}
		if o.Error != "" {
			msg += ": " + o.Error
		}
		detail = s.warning.Render(msg)
	default:
		detail = s.detail.Render(string(o.Kind))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, id, "  ", detail)
}
