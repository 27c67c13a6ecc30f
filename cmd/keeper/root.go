package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/sessionkeeper/internal/config"
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	KeeperConfig = c

	rootCmd := &cobra.Command{
		Use:   "keeper",
		Short: "keeper - notebook session keepalive",
		Long: `keeper keeps a browser-hosted notebook runtime connected for long
unattended periods. It restores the saved login, connects the runtime,
simulates light activity and rebuilds the browser when the session drops.

Run 'keeper login' once to capture credentials, then just type 'keeper'.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeeper(cmd.Context())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file merged over the built-in defaults")

	// Add commands
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(LoginCmd())
	rootCmd.AddCommand(HealthCmd())
	rootCmd.AddCommand(StatusCmd())

	return rootCmd
}

// RunCmd is the explicit form of the default command.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the notebook session alive (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeeper(cmd.Context())
		},
	}
}
