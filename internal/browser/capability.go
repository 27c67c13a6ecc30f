package browser

import (
	"context"
	"errors"

	"github.com/neboloop/sessionkeeper/internal/credential"
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("browser session is closed")

// ErrForeignElement is returned when an Element from another driver is activated.
var ErrForeignElement = errors.New("element does not belong to this session")

// Element is a handle returned by FindByDescriptor.
type Element interface {
	// Describe returns a short human readable description for logs.
	Describe() string
}

// Capability is one live browser session. Implementations are not safe for
// concurrent use; the keeper serializes every call.
type Capability interface {
	// Open navigates to url and returns the location the browser lands on.
	Open(ctx context.Context, url string) (string, error)
	CurrentLocation(ctx context.Context) (string, error)
	// CurrentContent returns the page source.
	CurrentContent(ctx context.Context) (string, error)
	// FindByDescriptor returns every element matching an XPath descriptor.
	// No match is an empty slice, not an error.
	FindByDescriptor(ctx context.Context, descriptor string) ([]Element, error)
	Activate(ctx context.Context, el Element) error
	InjectTokens(ctx context.Context, b credential.Bundle) error
	ExtractTokens(ctx context.Context) (credential.Bundle, error)
	RunScript(ctx context.Context, snippet string) error
	PressKey(ctx context.Context, key string) error
	// Snapshot returns a PNG of the current page.
	Snapshot(ctx context.Context) ([]byte, error)
	Refresh(ctx context.Context) error
	Close() error
}

// Factory builds a fresh Capability.
type Factory func(ctx context.Context) (Capability, error)
