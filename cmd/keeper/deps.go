package cli

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/credential"
	"github.com/neboloop/sessionkeeper/internal/logging"
)

func newLogger(c config.Config) (*zap.Logger, error) {
	lc := c.Log
	if verbose {
		lc.Level = "debug"
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, err
	}
	logging.Init(log)
	return log, nil
}

// openStore returns the configured credential store.
func openStore(c config.Config) credential.Store {
	if c.Credentials.Sealed {
		keyFile := filepath.Join(filepath.Dir(c.Credentials.Path), "bundle.key")
		return credential.NewSealedStore(c.Credentials.Path, credential.KeyringKey(keyFile))
	}
	return credential.NewFileStore(c.Credentials.Path)
}

func browserOptions(c config.Config) browser.Options {
	b := c.Browser
	return browser.Options{
		Headless:   b.Headless,
		NoSandbox:  b.NoSandbox,
		Width:      b.Window.Width,
		Height:     b.Window.Height,
		UserAgent:  b.UserAgent,
		ExecPath:   b.ExecPath,
		ExtraFlags: b.ExtraFlags,
		OpTimeout:  b.OpTimeout,
	}
}

func newFactory(c config.Config, opts browser.Options, log *zap.Logger) (browser.Factory, error) {
	f, err := browser.NewFactory(c.Browser.Driver, opts, log)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	return f, nil
}
