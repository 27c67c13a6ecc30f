package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/credential"
	"github.com/neboloop/sessionkeeper/internal/session"
)

var (
	errStillOnLogin = errors.New("browser is still on the login page")
	errNoTokens     = errors.New("browser returned no credentials")
	errNoBundle     = errors.New("no saved credentials; run `keeper login` first")
)

// LoginCmd captures credentials from a human-driven login.
func LoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in interactively and save the session credentials",
		Long: `Opens a visible browser at the login page. Sign in (including any
second factor), then return here and press ENTER. The session cookies are
saved where 'keeper run' will pick them up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *KeeperConfig
			log, err := newLogger(c)
			if err != nil {
				return err
			}

			visible := browserOptions(c)
			visible.Headless = false
			headless := browserOptions(c)
			headless.Headless = true

			d := loginDeps{
				cfg:   c,
				store: openStore(c),
				in:    cmd.InOrStdin(),
				out:   cmd.OutOrStdout(),
				clock: clock.Real{},
			}
			if d.visible, err = newFactory(c, visible, log); err != nil {
				return err
			}
			if d.headless, err = newFactory(c, headless, log); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if !loginVerifyOnly {
				if err := capture(ctx, d); err != nil {
					return err
				}
			}
			if loginVerify || loginVerifyOnly {
				return verifyAccess(ctx, d)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&loginVerify, "verify", false, "test the saved credentials against the notebook after login")
	cmd.Flags().BoolVar(&loginVerifyOnly, "verify-only", false, "skip the login and only test the saved credentials")
	return cmd
}

type loginDeps struct {
	cfg      config.Config
	visible  browser.Factory
	headless browser.Factory
	store    credential.Store
	in       io.Reader
	out      io.Writer
	clock    clock.Clock
}

func capture(ctx context.Context, d loginDeps) error {
	locator, err := session.NewLocator(d.cfg.Session.LoginPatterns, d.cfg.Session.TargetPatterns)
	if err != nil {
		return err
	}

	fmt.Fprintln(d.out, "Opening browser...")
	b, err := d.visible(ctx)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	if _, err := b.Open(ctx, d.cfg.Session.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	fmt.Fprintln(d.out, `
MANUAL ACTION REQUIRED:
  1. Log in to your account in the browser window
  2. Complete any second factor if asked
  3. Wait until your account page has loaded
  4. Come back here and press ENTER`)
	if err := waitForEnter(ctx, d.in); err != nil {
		return err
	}

	loc, err := b.CurrentLocation(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	fmt.Fprintf(d.out, "Current location: %s\n", loc)
	if locator.Classify(loc) == session.LandingLogin {
		return errStillOnLogin
	}

	bundle, err := b.ExtractTokens(ctx)
	if err != nil {
		return fmt.Errorf("extract credentials: %w", err)
	}
	if bundle.Empty() {
		return errNoTokens
	}
	if err := d.store.Save(ctx, bundle); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Fprintf(d.out, "Saved %d credentials.\n", len(bundle))
	return nil
}

// verifyAccess loads the saved bundle into a fresh headless browser and
// checks that the notebook opens without a login redirect.
func verifyAccess(ctx context.Context, d loginDeps) error {
	locator, err := session.NewLocator(d.cfg.Session.LoginPatterns, d.cfg.Session.TargetPatterns)
	if err != nil {
		return err
	}
	bundle, ok, err := d.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !ok || bundle.Empty() {
		return errNoBundle
	}

	fmt.Fprintln(d.out, "Testing notebook access...")
	b, err := d.headless(ctx)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	if err := b.InjectTokens(ctx, bundle); err != nil {
		return fmt.Errorf("inject credentials: %w", err)
	}
	loc, err := b.Open(ctx, d.cfg.Session.TargetURL)
	if err != nil {
		return fmt.Errorf("open notebook: %w", err)
	}
	if err := d.clock.Sleep(ctx, d.cfg.Handshake.OpenSettle); err != nil {
		return err
	}
	if cur, err := b.CurrentLocation(ctx); err == nil && cur != "" {
		loc = cur
	}

	if locator.Classify(loc) != session.LandingTarget {
		return fmt.Errorf("notebook not reachable, landed on %s", loc)
	}
	fmt.Fprintln(d.out, "Notebook access verified.")
	return nil
}

func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
