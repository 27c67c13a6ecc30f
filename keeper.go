package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/neboloop/sessionkeeper/cmd/keeper"
	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/defaults"

	"github.com/joho/godotenv"
)

//go:embed etc/keeper.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load embedded config (defaults)
	c, err := config.LoadFromBytes(embeddedConfig)
	if err != nil {
		fmt.Printf("Failed to load embedded config: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := defaults.EnsureDataDir()
	if err != nil {
		fmt.Printf("Failed to prepare data directory: %v\n", err)
		os.Exit(1)
	}

	// User overrides: <data_dir>/config.yaml, then --config
	userConfig := filepath.Join(dataDir, defaults.UserConfigFile)
	if _, err := os.Stat(userConfig); err == nil {
		if err := c.MergeFile(userConfig); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	if path := configArg(os.Args[1:]); path != "" {
		if err := c.MergeFile(path); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	c.ResolvePaths(dataDir)
	cli.DataDir = dataDir

	// Pass config to CLI and execute
	if err := cli.SetupRootCmd(&c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configArg finds --config before cobra parses flags, since the file has to
// be merged before any command runs.
func configArg(args []string) string {
	for i, a := range args {
		switch {
		case a == "--":
			return ""
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
