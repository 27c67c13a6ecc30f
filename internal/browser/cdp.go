package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/credential"
)

// CDP drives Chrome over the DevTools protocol with chromedp.
type CDP struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	log         *zap.Logger

	mu     sync.Mutex
	closed bool
}

type cdpElement struct {
	node       *cdp.Node
	descriptor string
}

func (e *cdpElement) Describe() string {
	return fmt.Sprintf("%s <%s>", e.descriptor, e.node.NodeName)
}

var cdpKeys = map[string]string{
	KeyArrowDown: kb.ArrowDown,
	KeyArrowUp:   kb.ArrowUp,
	KeyPageDown:  kb.PageDown,
	KeyPageUp:    kb.PageUp,
}

// NewCDP launches a browser and opens one tab. The browser outlives ctx; it
// is torn down by Close.
func NewCDP(ctx context.Context, opts Options, log *zap.Logger) (*CDP, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	exe, err := FindChromeExecutable(opts.ExecPath)
	if err != nil {
		return nil, err
	}
	if exe != nil {
		allocOpts = append(allocOpts, chromedp.ExecPath(exe.Path))
	}
	for _, f := range opts.ExtraFlags {
		name, value := splitFlag(f)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser; it must not carry a deadline or the
	// browser dies with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	log.Debug("chromedp session started", zap.Bool("headless", opts.Headless))
	return &CDP{
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		timeout:     opts.OpTimeout,
		log:         log,
	}, nil
}

// splitFlag turns "--name=value" into ("name", "value") and "--name" into ("name", true).
func splitFlag(f string) (string, any) {
	for len(f) > 0 && f[0] == '-' {
		f = f[1:]
	}
	for i := 0; i < len(f); i++ {
		if f[i] == '=' {
			return f[:i], f[i+1:]
		}
	}
	return f, true
}

func (d *CDP) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithTimeout(d.tab, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *CDP) Open(ctx context.Context, url string) (string, error) {
	var loc string
	err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&loc),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return loc, nil
}

func (d *CDP) CurrentLocation(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

func (d *CDP) CurrentContent(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", fmt.Errorf("content: %w", err)
	}
	return html, nil
}

func (d *CDP) FindByDescriptor(ctx context.Context, descriptor string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(descriptor, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %q: %w", descriptor, err)
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &cdpElement{node: n, descriptor: descriptor})
	}
	return out, nil
}

func (d *CDP) Activate(ctx context.Context, el Element) error {
	e, ok := el.(*cdpElement)
	if !ok {
		return ErrForeignElement
	}
	if err := d.run(ctx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click %s: %w", e.Describe(), err)
	}
	return nil
}

func (d *CDP) InjectTokens(ctx context.Context, b credential.Bundle) error {
	if b.Empty() {
		return nil
	}
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(toCDPCookies(b)).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (d *CDP) ExtractTokens(ctx context.Context) (credential.Bundle, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return fromCDPCookies(cookies), nil
}

func (d *CDP) RunScript(ctx context.Context, snippet string) error {
	if err := d.run(ctx, chromedp.Evaluate(snippet, nil)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (d *CDP) PressKey(ctx context.Context, key string) error {
	k, ok := cdpKeys[key]
	if !ok {
		k = key
	}
	if err := d.run(ctx, chromedp.KeyEvent(k)); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (d *CDP) Snapshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// quality 100 selects PNG
	if err := d.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (d *CDP) Refresh(ctx context.Context) error {
	if err := d.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (d *CDP) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := chromedp.Cancel(d.tab)
	d.tabCancel()
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
