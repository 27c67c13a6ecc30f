// Package browser is the automation capability the keeper drives: an abstract
// Capability plus chromedp and playwright-go implementations.
package browser

// Key names accepted by Capability.PressKey.
const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyPageDown  = "PageDown"
	KeyPageUp    = "PageUp"
)

// Driver names.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

const (
	defaultWidth     = 1920
	defaultHeight    = 1080
	defaultOpTimeout = 60
)
