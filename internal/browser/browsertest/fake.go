// Package browsertest provides a scriptable in-memory browser.Capability.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/credential"
)

// ErrInjected is the default error returned by failing calls.
var ErrInjected = errors.New("injected failure")

// Element is the handle handed out by Fake.
type Element struct {
	Descriptor string
	Index      int
}

func (e Element) Describe() string { return fmt.Sprintf("%s #%d", e.Descriptor, e.Index) }

// Fake is a browser.Capability whose behavior is set through its exported
// fields. All fields may be changed between calls while holding no lock;
// the keeper never calls a capability concurrently.
type Fake struct {
	// Landing is the location Open reports. Empty means the requested URL.
	Landing string
	Content string
	// Elements maps an XPath descriptor to the number of matches.
	Elements  map[string]int
	Extracted credential.Bundle
	Shot      []byte
	// Fail makes the named method ("Open", "Snapshot", ...) return the error.
	Fail map[string]error
	// OnActivate runs after an element is activated.
	OnActivate func(f *Fake, el Element)
	// OnRefresh runs after a successful Refresh.
	OnRefresh func(f *Fake)

	mu       sync.Mutex
	location string
	calls    []string
	injected []credential.Bundle
	scripts  []string
	keys     []string
	opened   []string
	clicked  []Element
	closed   bool
}

var _ browser.Capability = (*Fake)(nil)

func (f *Fake) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.closed && name != "Close" {
		return browser.ErrClosed
	}
	if err, ok := f.Fail[name]; ok {
		if err == nil {
			err = ErrInjected
		}
		return err
	}
	return nil
}

func (f *Fake) Open(ctx context.Context, url string) (string, error) {
	if err := f.record("Open"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	f.location = url
	if f.Landing != "" {
		f.location = f.Landing
	}
	return f.location, nil
}

func (f *Fake) CurrentLocation(ctx context.Context) (string, error) {
	if err := f.record("CurrentLocation"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Landing != "" {
		return f.Landing, nil
	}
	return f.location, nil
}

func (f *Fake) CurrentContent(ctx context.Context) (string, error) {
	if err := f.record("CurrentContent"); err != nil {
		return "", err
	}
	return f.Content, nil
}

func (f *Fake) FindByDescriptor(ctx context.Context, descriptor string) ([]browser.Element, error) {
	if err := f.record("FindByDescriptor"); err != nil {
		return nil, err
	}
	n := f.Elements[descriptor]
	out := make([]browser.Element, 0, n)
	for i := range n {
		out = append(out, Element{Descriptor: descriptor, Index: i})
	}
	return out, nil
}

func (f *Fake) Activate(ctx context.Context, el browser.Element) error {
	if err := f.record("Activate"); err != nil {
		return err
	}
	e, ok := el.(Element)
	if !ok {
		return browser.ErrForeignElement
	}
	f.mu.Lock()
	f.clicked = append(f.clicked, e)
	f.mu.Unlock()
	if f.OnActivate != nil {
		f.OnActivate(f, e)
	}
	return nil
}

func (f *Fake) InjectTokens(ctx context.Context, b credential.Bundle) error {
	if err := f.record("InjectTokens"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, append(credential.Bundle(nil), b...))
	return nil
}

func (f *Fake) ExtractTokens(ctx context.Context) (credential.Bundle, error) {
	if err := f.record("ExtractTokens"); err != nil {
		return nil, err
	}
	return append(credential.Bundle(nil), f.Extracted...), nil
}

func (f *Fake) RunScript(ctx context.Context, snippet string) error {
	if err := f.record("RunScript"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, snippet)
	return nil
}

func (f *Fake) PressKey(ctx context.Context, key string) error {
	if err := f.record("PressKey"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *Fake) Snapshot(ctx context.Context) ([]byte, error) {
	if err := f.record("Snapshot"); err != nil {
		return nil, err
	}
	if f.Shot == nil {
		return []byte("\x89PNG fake"), nil
	}
	return f.Shot, nil
}

func (f *Fake) Refresh(ctx context.Context) error {
	if err := f.record("Refresh"); err != nil {
		return err
	}
	if f.OnRefresh != nil {
		f.OnRefresh(f)
	}
	return nil
}

func (f *Fake) Close() error {
	_ = f.record("Close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if err, ok := f.Fail["Close"]; ok {
		return err
	}
	return nil
}

// Calls returns every method name invoked, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times the named method was called.
func (f *Fake) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *Fake) Injected() []credential.Bundle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]credential.Bundle(nil), f.injected...)
}

func (f *Fake) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

func (f *Fake) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *Fake) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *Fake) Clicked() []Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Element(nil), f.clicked...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Pool hands out Fakes from a factory. Fakes are consumed in order; once
// exhausted, New is called, or Err is returned when New is nil.
type Pool struct {
	Fakes []*Fake
	New   func(n int) *Fake
	Err   error

	mu    sync.Mutex
	built []*Fake
}

// Factory returns a browser.Factory backed by the pool.
func (p *Pool) Factory() browser.Factory {
	return func(ctx context.Context) (browser.Capability, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		n := len(p.built)
		var f *Fake
		switch {
		case n < len(p.Fakes):
			f = p.Fakes[n]
		case p.New != nil:
			f = p.New(n)
		}
		if f == nil {
			if p.Err != nil {
				return nil, p.Err
			}
			return nil, errors.New("browsertest: pool exhausted")
		}
		p.built = append(p.built, f)
		return f, nil
	}
}

// Built returns every Fake handed out so far.
func (p *Pool) Built() []*Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Fake(nil), p.built...)
}
