package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/sessionkeeper/internal/health"
)

// HealthCmd runs the standalone liveness server.
func HealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Serve /health for the keeper process",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *KeeperConfig
			log, err := newLogger(c)
			if err != nil {
				return err
			}

			addr, process := c.Health.Addr, c.Health.Process
			if healthAddr != "" {
				addr = healthAddr
			}
			if healthProc != "" {
				process = healthProc
			}
			checker, label := healthChecker(DataDir, process)

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return health.Serve(ctx, addr, health.NewRouter(checker, label), log)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "addr", "", "listen address (default from config, :8081)")
	cmd.Flags().StringVar(&healthProc, "process", "", "check this process name with pgrep -x instead of the run lock")
	return cmd
}

// healthChecker follows the run lock in dataDir unless a process name is
// given, in which case pgrep looks for it.
func healthChecker(dataDir, process string) (health.ProcessChecker, string) {
	if process != "" {
		return health.Pgrep{}, process
	}
	return health.RunLock{Path: filepath.Join(dataDir, health.LockFileName)}, "keeper"
}
