package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/swarmchat/internal/domain"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	app := newApp()

	rootCmd := &cobra.Command{
		Use:           "swarmchat",
		Short:         "Swarmchat: chat over a locally supervised node",
		Long:          "swarmchat supervises a local chat node, keeps a session to it, and lets you read rooms, send messages and manage block and mute lists from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Config file (default ~/.swarmchat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level override (debug|info|warn|error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newNodeCmd(app),
		newStatusCmd(app),
		newConnectCmd(app),
		newLoginCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newRoomsCmd(app),
		newHistoryCmd(app),
		newSendCmd(app),
		newListCmd(app, "block", domain.ListBlocked),
		newListCmd(app, "mute", domain.ListMuted),
		newChatCmd(app),
	)

	return rootCmd
}
