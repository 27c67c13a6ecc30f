package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Options configures a browser session.
type Options struct {
	Headless  bool
	NoSandbox bool
	Width     int
	Height    int
	UserAgent string
	// ExecPath overrides auto-detection of Chrome.
	ExecPath   string
	ExtraFlags []string
	// OpTimeout bounds every single browser call.
	OpTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout * time.Second
	}
	return o
}

// chromeFlags returns the command line switches shared by both drivers.
func chromeFlags(o Options) []string {
	flags := []string{
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--disable-blink-features=AutomationControlled",
		"--window-size=" + strconv.Itoa(o.Width) + "," + strconv.Itoa(o.Height),
	}
	if o.NoSandbox {
		flags = append(flags, "--no-sandbox")
	}
	return append(flags, o.ExtraFlags...)
}

// NewFactory returns a Factory for the named driver.
func NewFactory(driver string, opts Options, log *zap.Logger) (Factory, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	switch driver {
	case DriverChromedp, "":
		return func(ctx context.Context) (Capability, error) {
			return NewCDP(ctx, opts, log)
		}, nil
	case DriverPlaywright:
		return func(ctx context.Context) (Capability, error) {
			return NewPlaywright(ctx, opts, log)
		}, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", driver)
	}
}
