package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/pocketfi-claimer/internal/adapters/render/status"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/spf13/cobra"
)

func newClaimCmd(app *app) *cobra.Command {
	var accountIDs []string
	var asJSON bool
	var noSpinner bool

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Run one claim pass over all accounts and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner := app.newRunner(parseAccountIDs(accountIDs))

			var outcomes []domain.Outcome
			var passErr error
			pass := func(ctx context.Context) error {
				outcomes, passErr = runner.RunOnce(ctx)
				// A failed account still yields outcomes worth printing.
				if outcomes == nil {
					return passErr
				}
				return nil
			}

			var err error
			if asJSON || noSpinner {
				err = pass(cmd.Context())
			} else {
				err = runClaimSpinner(cmd.Context(), app.errOut, "Claiming...", pass)
			}
			if err != nil {
				return err
			}

			if err := writeOutcomes(cmd, outcomes, asJSON); err != nil {
				return err
			}
			if passErr != nil {
				return fmt.Errorf("claim pass: %w", passErr)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&accountIDs, "account", nil, "Only claim for these account IDs (repeatable or comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print outcomes as JSON")
	cmd.Flags().BoolVar(&noSpinner, "no-spinner", false, "Do not animate progress on stderr")

	return cmd
}

func writeOutcomes(cmd *cobra.Command, outcomes []domain.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), statusadapter.RenderOutcomes(outcomes))
	return err
}
