package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/sessionkeeper/internal/defaults"
	"github.com/neboloop/sessionkeeper/internal/logging"
)

// Supported browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// LoadFromBytes loads configuration from YAML bytes with environment variable expansion
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	if err := c.MergeBytes(data); err != nil {
		return c, err
	}
	return c, nil
}

// MergeBytes overlays YAML onto c. Keys absent from data keep their current
// values; lists are replaced wholesale.
func (c *Config) MergeBytes(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// MergeFile overlays the YAML file at path onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.MergeBytes(data)
}

// Config is the single configuration struct handed to the orchestrator.
type Config struct {
	Session     Session        `yaml:"session"`
	Browser     Browser        `yaml:"browser"`
	Handshake   Handshake      `yaml:"handshake"`
	Activity    Activity       `yaml:"activity"`
	Recovery    Recovery       `yaml:"recovery"`
	Credentials Credentials    `yaml:"credentials"`
	Diagnostics Diagnostics    `yaml:"diagnostics"`
	Journal     Journal        `yaml:"journal"`
	Metrics     Metrics        `yaml:"metrics"`
	Health      Health         `yaml:"health"`
	Log         logging.Config `yaml:"log"`
}

// Session identifies the remote notebook and how to classify landing locations.
type Session struct {
	TargetURL      string   `yaml:"target_url"`
	LoginURL       string   `yaml:"login_url"`
	LoginPatterns  []string `yaml:"login_patterns"`
	TargetPatterns []string `yaml:"target_patterns"`
}

type Window struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Browser configures the automation driver.
type Browser struct {
	Driver     string        `yaml:"driver"`
	Headless   bool          `yaml:"headless"`
	NoSandbox  bool          `yaml:"no_sandbox"`
	Window     Window        `yaml:"window"`
	UserAgent  string        `yaml:"user_agent"`
	ExecPath   string        `yaml:"exec_path"`
	ExtraFlags []string      `yaml:"extra_flags"`
	OpTimeout  time.Duration `yaml:"op_timeout"`
}

// Handshake holds the descriptors, keywords and waits of the runtime-connect step.
type Handshake struct {
	ConnectDescriptors    []string      `yaml:"connect_descriptors"`
	RunAllDescriptors     []string      `yaml:"runall_descriptors"`
	DisconnectDescriptors []string      `yaml:"disconnect_descriptors"`
	ConnectedKeywords     []string      `yaml:"connected_keywords"`
	DisconnectedKeywords  []string      `yaml:"disconnected_keywords"`
	VisibleTextOnly       bool          `yaml:"visible_text_only"`
	OpenSettle            time.Duration `yaml:"open_settle"`
	ConnectSettle         time.Duration `yaml:"connect_settle"`
	IndicatorWait         time.Duration `yaml:"indicator_wait"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	RunAllWait            time.Duration `yaml:"runall_wait"`
	RefreshSettle         time.Duration `yaml:"refresh_settle"`
}

// Activity configures the four scheduler timers.
type Activity struct {
	Quantum            time.Duration `yaml:"quantum"`
	HumanMin           time.Duration `yaml:"human_min"`
	HumanMax           time.Duration `yaml:"human_max"`
	HealthSchedule     string        `yaml:"health_schedule"`
	SnapshotSchedule   string        `yaml:"snapshot_schedule"`
	RefreshProbability float64       `yaml:"refresh_probability"`
}

// Recovery configures both retry scopes.
type Recovery struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffStep      time.Duration `yaml:"backoff_step"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	WatchCredentials bool          `yaml:"watch_credentials"`
}

type Credentials struct {
	Path   string `yaml:"path"`
	Sealed bool   `yaml:"sealed"`
}

type Diagnostics struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

type Health struct {
	Addr    string `yaml:"addr"`
	Process string `yaml:"process"`
}

// ResolvePaths makes every relative path absolute against dataDir.
func (c *Config) ResolvePaths(dataDir string) {
	c.Credentials.Path = defaults.Resolve(dataDir, c.Credentials.Path)
	c.Diagnostics.Dir = defaults.Resolve(dataDir, c.Diagnostics.Dir)
	c.Journal.Path = defaults.Resolve(dataDir, c.Journal.Path)
	c.Log.File = defaults.Resolve(dataDir, c.Log.File)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Session.TargetURL) == "" {
		add("session.target_url is required")
	}
	if len(c.Session.LoginPatterns) == 0 {
		add("session.login_patterns must not be empty")
	}
	if len(c.Session.TargetPatterns) == 0 {
		add("session.target_patterns must not be empty")
	}

	switch c.Browser.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		add("browser.driver %q is not one of %s, %s", c.Browser.Driver, DriverChromedp, DriverPlaywright)
	}
	if c.Browser.OpTimeout <= 0 {
		add("browser.op_timeout must be positive")
	}

	if c.Handshake.PollInterval <= 0 {
		add("handshake.poll_interval must be positive")
	}

	if c.Activity.Quantum <= 0 {
		add("activity.quantum must be positive")
	}
	if c.Activity.HumanMin <= 0 || c.Activity.HumanMax <= c.Activity.HumanMin {
		add("activity.human_max (%s) must exceed human_min (%s) > 0", c.Activity.HumanMax, c.Activity.HumanMin)
	}
	if c.Activity.RefreshProbability < 0 || c.Activity.RefreshProbability > 1 {
		add("activity.refresh_probability %v outside [0,1]", c.Activity.RefreshProbability)
	}
	if c.Activity.HealthSchedule == "" || c.Activity.SnapshotSchedule == "" {
		add("activity.health_schedule and snapshot_schedule are required")
	}

	if c.Recovery.MaxAttempts < 1 {
		add("recovery.max_attempts must be at least 1")
	}
	if c.Recovery.BackoffStep < 0 || c.Recovery.BackoffCap < 0 || c.Recovery.Cooldown < 0 {
		add("recovery durations must not be negative")
	}

	if c.Credentials.Path == "" {
		add("credentials.path is required")
	}
	if c.Diagnostics.Keep < 0 {
		add("diagnostics.keep must not be negative")
	}

	return errors.Join(errs...)
}
