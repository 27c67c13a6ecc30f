package session

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Landing classifies where navigation ended up.
type Landing int

const (
	LandingUnknown Landing = iota
	LandingLogin
	LandingTarget
)

func (l Landing) String() string {
	switch l {
	case LandingLogin:
		return "login"
	case LandingTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Locator matches locations against login and target glob patterns.
// Matching is case-insensitive and login patterns win.
type Locator struct {
	login  []glob.Glob
	target []glob.Glob
}

func NewLocator(login, target []string) (*Locator, error) {
	l := &Locator{}
	var err error
	if l.login, err = compile(login); err != nil {
		return nil, err
	}
	if l.target, err = compile(target); err != nil {
		return nil, err
	}
	return l, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (l *Locator) Classify(location string) Landing {
	loc := strings.ToLower(location)
	if matchAny(l.login, loc) {
		return LandingLogin
	}
	if matchAny(l.target, loc) {
		return LandingTarget
	}
	return LandingUnknown
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
