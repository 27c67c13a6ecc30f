// Package detect decides from page content and elements whether the remote
// runtime is connected, disconnected, or needs the fallback action.
package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/neboloop/sessionkeeper/internal/browser"
)

// Signal is a detector verdict.
type Signal int

const (
	// SignalUnknown means the detector saw nothing it recognizes.
	SignalUnknown Signal = iota
	// SignalFallbackRequired means no connected indicator is present and the
	// fallback action should be triggered.
	SignalFallbackRequired
	// SignalConnected means an explicit connected indicator is present.
	SignalConnected
	// SignalDisconnected means a reconnect or disconnected indicator is present.
	SignalDisconnected
)

func (s Signal) String() string {
	switch s {
	case SignalFallbackRequired:
		return "fallback_required"
	case SignalConnected:
		return "connected"
	case SignalDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Probe is the read-only part of browser.Capability a detector may use.
type Probe interface {
	CurrentContent(ctx context.Context) (string, error)
	FindByDescriptor(ctx context.Context, descriptor string) ([]browser.Element, error)
}

// Detector inspects the current page.
type Detector interface {
	Detect(ctx context.Context, p Probe) (Signal, error)
}

// TextDetector matches keywords against lower-cased page content.
// Disconnected keywords are checked first, so "disconnected" never reads as
// "connected".
type TextDetector struct {
	Connected    []string
	Disconnected []string
	// VisibleOnly strips markup, scripts and styles before matching.
	VisibleOnly bool
}

func (d TextDetector) Detect(ctx context.Context, p Probe) (Signal, error) {
	content, err := p.CurrentContent(ctx)
	if err != nil {
		return SignalUnknown, fmt.Errorf("read content: %w", err)
	}
	if d.VisibleOnly {
		content = VisibleText(content)
	}
	content = strings.ToLower(content)

	if containsAny(content, d.Disconnected) {
		return SignalDisconnected, nil
	}
	if containsAny(content, d.Connected) {
		return SignalConnected, nil
	}
	return SignalFallbackRequired, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// ElementDetector looks for elements by XPath descriptor.
type ElementDetector struct {
	Connected    []string
	Disconnected []string
}

func (d ElementDetector) Detect(ctx context.Context, p Probe) (Signal, error) {
	found, err := anyPresent(ctx, p, d.Disconnected)
	if err != nil || found {
		return signalIf(found, SignalDisconnected), err
	}
	found, err = anyPresent(ctx, p, d.Connected)
	if err != nil {
		return SignalUnknown, err
	}
	return signalIf(found, SignalConnected), nil
}

func signalIf(ok bool, s Signal) Signal {
	if ok {
		return s
	}
	return SignalUnknown
}

func anyPresent(ctx context.Context, p Probe, descriptors []string) (bool, error) {
	for _, desc := range descriptors {
		els, err := p.FindByDescriptor(ctx, desc)
		if err != nil {
			return false, fmt.Errorf("find %q: %w", desc, err)
		}
		if len(els) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Chain runs detectors in order. Disconnected from any member wins at once;
// otherwise the strongest verdict is returned (connected over fallback over
// unknown). The first error aborts the chain.
type Chain []Detector

func (c Chain) Detect(ctx context.Context, p Probe) (Signal, error) {
	best := SignalUnknown
	for _, d := range c {
		s, err := d.Detect(ctx, p)
		if err != nil {
			return SignalUnknown, err
		}
		if s == SignalDisconnected {
			return s, nil
		}
		if s > best {
			best = s
		}
	}
	return best, nil
}
