package cli

import (
	"github.com/neboloop/sessionkeeper/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	verbose         bool
	configFile      string
	loginVerify     bool
	loginVerifyOnly bool
	healthAddr      string
	healthProc      string
	statusLimit     int
)

// KeeperConfig holds the loaded configuration (set by main)
var KeeperConfig *config.Config

// DataDir is the resolved data directory (set by main)
var DataDir string
