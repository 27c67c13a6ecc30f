package activity

import (
	"context"
	"fmt"

	"github.com/neboloop/sessionkeeper/internal/browser"
)

var scrollDeltas = []int{100, 200, 300, -100, -200}

var humanKeys = []string{
	browser.KeyArrowDown,
	browser.KeyArrowUp,
	browser.KeyPageDown,
	browser.KeyPageUp,
}

// human performs one randomly chosen interaction and describes it.
func (s *Scheduler) human(ctx context.Context) (string, error) {
	switch s.rng.IntN(3) {
	case 0:
		d := scrollDeltas[s.rng.IntN(len(scrollDeltas))]
		script := fmt.Sprintf("window.scrollBy(0, %d);", d)
		return script, s.deps.Browser.RunScript(ctx, script)
	case 1:
		key := humanKeys[s.rng.IntN(len(humanKeys))]
		return "key " + key, s.deps.Browser.PressKey(ctx, key)
	default:
		x := s.rng.IntN(max(s.cfg.ViewportWidth, 1))
		y := s.rng.IntN(max(s.cfg.ViewportHeight, 1))
		script := fmt.Sprintf("window.scrollTo(%d, %d);", x, y)
		return script, s.deps.Browser.RunScript(ctx, script)
	}
}
