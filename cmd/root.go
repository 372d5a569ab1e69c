package cmd

import "github.com/spf13/cobra"

func Execute() error {
	app := &app{}
	defer func() { _ = app.Close() }()

	return newRootCmd(app).Execute()
}

func newRootCmd(app *app) *cobra.Command {
	var opts wireOptions

	rootCmd := &cobra.Command{
		Use:           "pfc",
		Short:         "PocketFi claimer (pfc): claim mining rewards across accounts",
		Long:          "pfc keeps a set of PocketFi accounts, each with its own session and proxy, and claims their mining rewards whenever a claim window opens.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipWireAnnotation] == "true" {
				return nil
			}
			return app.wire(opts, cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ~/.pocketfi/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug|info|warn|error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newSessionCmd(app),
		newClaimCmd(app),
		newRunCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}

const skipWireAnnotation = "pfc/skip-wire"
