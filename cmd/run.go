package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(app *app) *cobra.Command {
	var accountIDs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim continuously until interrupted",
		Long:  "run claims for every due account right away, then re-checks each account on every poll tick (schedule.poll) until SIGINT or SIGTERM. Accounts whose session is rejected for good are skipped until `pfc account reset`.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := app.newRunner(parseAccountIDs(accountIDs)).Run(ctx)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				app.logger.Info("interrupted", zap.Error(err))
				return nil
			case errors.Is(err, application.ErrNoActiveAccounts):
				return errors.New("no account can be scheduled: add one with `pfc account add` or resume halted ones with `pfc account reset`")
			default:
				return err
			}
		},
	}

	cmd.Flags().StringSliceVar(&accountIDs, "account", nil, "Only run these account IDs (repeatable or comma separated)")

	return cmd
}
