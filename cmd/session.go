package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bnema/pocketfi-claimer/internal/application"
	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/spf13/cobra"
)

const maxSessionBytes = 64 << 10

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the web-app session of an account",
	}

	cmd.AddCommand(newSessionSetCmd(app), newSessionClearCmd(app))

	return cmd
}

func newSessionSetCmd(app *app) *cobra.Command {
	var accountID string
	var value string
	var valueFile string
	var secretKey string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the web-app URL or init data of an account",
		Long:  "Store the Telegram web-app URL (the one containing tgWebAppData) or the raw init data for an account. The value goes to the secret store; only its key is written to accounts.toml.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readSessionValue(cmd, value, valueFile)
			if err != nil {
				return err
			}

			if err := app.service.SetSession(cmd.Context(), application.SetSessionCommand{
				ID:        domain.AccountID(accountID),
				Value:     data,
				SecretKey: secretKey,
			}); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "session stored for account %s\n", accountID)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&value, "value", "", "Web-app URL or init data")
	cmd.Flags().StringVar(&valueFile, "value-file", "", "Read the value from a file, - for stdin")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "Secret-store key (default pocketfi://<id>/session)")
	cmd.MarkFlagsMutuallyExclusive("value", "value-file")
	cmd.MarkFlagsOneRequired("value", "value-file")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newSessionClearCmd(app *app) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.service.ClearSession(cmd.Context(), domain.AccountID(accountID))
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func readSessionValue(cmd *cobra.Command, value, path string) (string, error) {
	if path == "" {
		return value, nil
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open session file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSessionBytes+1))
	if err != nil {
		return "", fmt.Errorf("read session value: %w", err)
	}
	if len(data) > maxSessionBytes {
		return "", errors.New("session value too large")
	}

	return string(data), nil
}
