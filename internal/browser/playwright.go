package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/credential"
)

// Playwright drives Chromium through playwright-go. Each instance owns its own
// driver process so discarding it leaves nothing behind.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	timeout float64
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
}

type pwElement struct {
	loc        playwright.Locator
	descriptor string
	index      int
}

func (e *pwElement) Describe() string {
	return fmt.Sprintf("%s #%d", e.descriptor, e.index)
}

// NewPlaywright starts a playwright driver and a Chromium page. A system
// Chrome is preferred; otherwise the bundled Chromium is installed on demand.
func NewPlaywright(ctx context.Context, opts Options, log *zap.Logger) (*Playwright, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exe, err := FindChromeExecutable(opts.ExecPath)
	if err != nil {
		return nil, err
	}

	runOpts := &playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: exe != nil,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     chromeFlags(opts),
	}
	if exe != nil {
		launch.ExecutablePath = playwright.String(exe.Path)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	timeout := float64(opts.OpTimeout.Milliseconds())
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	log.Debug("playwright session started", zap.Bool("headless", opts.Headless))
	return &Playwright{pw: pw, browser: browser, bctx: bctx, page: page, timeout: timeout, log: log}, nil
}

func (p *Playwright) check(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (p *Playwright) Open(ctx context.Context, url string) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(p.timeout),
	})
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return p.page.URL(), nil
}

func (p *Playwright) CurrentLocation(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Playwright) CurrentContent(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("content: %w", err)
	}
	return html, nil
}

func (p *Playwright) FindByDescriptor(ctx context.Context, descriptor string) ([]Element, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	locs, err := p.page.Locator("xpath=" + descriptor).All()
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", descriptor, err)
	}
	out := make([]Element, 0, len(locs))
	for i, l := range locs {
		out = append(out, &pwElement{loc: l, descriptor: descriptor, index: i})
	}
	return out, nil
}

func (p *Playwright) Activate(ctx context.Context, el Element) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	e, ok := el.(*pwElement)
	if !ok {
		return ErrForeignElement
	}
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(p.timeout)}); err != nil {
		return fmt.Errorf("click %s: %w", e.Describe(), err)
	}
	return nil
}

func (p *Playwright) InjectTokens(ctx context.Context, b credential.Bundle) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	if err := p.bctx.AddCookies(toPlaywrightCookies(b)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (p *Playwright) ExtractTokens(ctx context.Context) (credential.Bundle, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	cookies, err := p.bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return fromPlaywrightCookies(cookies), nil
}

func (p *Playwright) RunScript(ctx context.Context, snippet string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if _, err := p.page.Evaluate(snippet); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *Playwright) PressKey(ctx context.Context, key string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (p *Playwright) Snapshot(ctx context.Context) ([]byte, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

func (p *Playwright) Refresh(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if _, err := p.page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *Playwright) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(p.bctx.Close())
	keep(p.browser.Close())
	keep(p.pw.Stop())
	if firstErr != nil {
		return fmt.Errorf("close browser: %w", firstErr)
	}
	return nil
}
