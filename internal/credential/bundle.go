// Package credential persists the authentication bundle that lets the keeper
// re-enter the remote session without an interactive login.
package credential

import (
	"slices"
	"time"
)

// Token is one opaque session token. Only the browser driver interprets it.
type Token struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HTTPOnly bool       `json:"http_only,omitempty"`
	SameSite string     `json:"same_site,omitempty"`
}

// Equal compares every field, with expiries compared as instants.
func (t Token) Equal(o Token) bool {
	if t.Name != o.Name || t.Value != o.Value || t.Domain != o.Domain || t.Path != o.Path ||
		t.Secure != o.Secure || t.HTTPOnly != o.HTTPOnly || t.SameSite != o.SameSite {
		return false
	}
	switch {
	case t.Expires == nil && o.Expires == nil:
		return true
	case t.Expires == nil || o.Expires == nil:
		return false
	default:
		return t.Expires.Equal(*o.Expires)
	}
}

// Bundle is an ordered sequence of tokens.
type Bundle []Token

// Empty reports whether the bundle carries no tokens.
func (b Bundle) Empty() bool { return len(b) == 0 }

// Equal reports whether both bundles hold the same tokens in the same order.
func (b Bundle) Equal(o Bundle) bool {
	return slices.EqualFunc(b, o, Token.Equal)
}
