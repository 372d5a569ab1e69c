package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	statusadapter "github.com/bnema/pocketfi-claimer/internal/adapters/render/status"
	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var accountID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show claim windows per account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := loadStatuses(cmd, app.service, accountID)
			if err != nil {
				return err
			}

			return writeStatusesOutput(cmd, app, statuses, asJSON)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Only show this account ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statuses as JSON")

	return cmd
}

type statusJSON struct {
	AccountID        domain.AccountID `json:"account_id"`
	Name             string           `json:"name"`
	HasSession       bool             `json:"has_session"`
	Halted           bool             `json:"halted"`
	HaltReason       string           `json:"halt_reason,omitempty"`
	Due              bool             `json:"due"`
	NextEligibleAt   time.Time        `json:"next_eligible_at,omitzero"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	CheckedAt        time.Time        `json:"checked_at"`
}

func writeStatusesOutput(cmd *cobra.Command, app *app, statuses []application.Status, asJSON bool) error {
	if asJSON {
		out := make([]statusJSON, 0, len(statuses))
		for _, status := range statuses {
			remaining := int64(0)
			if status.Remaining > 0 {
				remaining = int64((status.Remaining + time.Second - 1) / time.Second)
			}
			out = append(out, statusJSON{
				AccountID:        status.Account.ID,
				Name:             status.Account.Name,
				HasSession:       status.HasSession,
				Halted:           status.Halted(),
				HaltReason:       status.Window.HaltReason,
				Due:              status.Due(),
				NextEligibleAt:   status.Window.NextEligibleAt,
				RemainingSeconds: remaining,
				CheckedAt:        status.CheckedAt,
			})
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	rendered, err := app.statusRenderer(statuses, statusadapter.RenderOptions{
		Now:      app.now(),
		Cooldown: app.cfg.Claim.Cooldown,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func loadStatuses(cmd *cobra.Command, svc *application.Service, accountID string) ([]application.Status, error) {
	if accountID == "" {
		return svc.GetStatusAll(cmd.Context())
	}

	status, err := svc.GetStatus(cmd.Context(), domain.AccountID(accountID))
	if err != nil {
		return nil, err
	}

	return []application.Status{status}, nil
}
