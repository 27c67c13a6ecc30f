package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// BrowserKind identifies the type of Chromium-based browser.
type BrowserKind string

const (
	BrowserChrome   BrowserKind = "chrome"
	BrowserEdge     BrowserKind = "edge"
	BrowserChromium BrowserKind = "chromium"
	BrowserCustom   BrowserKind = "custom"
)

// BrowserExecutable represents a found browser binary.
type BrowserExecutable struct {
	Kind BrowserKind
	Path string
}

type candidate struct {
	kind BrowserKind
	path string
}

var linuxCandidates = []candidate{
	{BrowserChrome, "/usr/bin/google-chrome"},
	{BrowserChrome, "/usr/bin/google-chrome-stable"},
	{BrowserChrome, "/usr/bin/chrome"},
	{BrowserChromium, "/usr/bin/chromium"},
	{BrowserChromium, "/usr/bin/chromium-browser"},
	{BrowserChromium, "/snap/bin/chromium"},
	{BrowserEdge, "/usr/bin/microsoft-edge"},
}

var macCandidates = []candidate{
	{BrowserChrome, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
	{BrowserChromium, "/Applications/Chromium.app/Contents/MacOS/Chromium"},
	{BrowserEdge, "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
}

// FindChromeExecutable finds a Chrome/Chromium browser on the system. It
// returns nil without error when none is installed, leaving the driver to
// fall back to its own lookup.
func FindChromeExecutable(customPath string) (*BrowserExecutable, error) {
	if customPath != "" {
		if !fileExists(customPath) {
			return nil, fmt.Errorf("browser executable not found: %s", customPath)
		}
		return &BrowserExecutable{Kind: BrowserCustom, Path: customPath}, nil
	}

	var candidates []candidate
	switch runtime.GOOS {
	case "linux":
		candidates = linuxCandidates
	case "darwin":
		candidates = macCandidates
	}
	for _, c := range candidates {
		if fileExists(c.path) {
			return &BrowserExecutable{Kind: c.kind, Path: c.path}, nil
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return &BrowserExecutable{Kind: BrowserChromium, Path: p}, nil
		}
	}
	return nil, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
