package browser

import (
	"os/exec"
	"strings"
)

// ChromeInfo describes the Chrome installation resolved at startup.
type ChromeInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Found   bool   `json:"found"`
}

// chrome binary names tried in order when no explicit path is set.
var chromeNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

// ProbeChrome locates the Chrome binary and reports its version. Used
// for startup logging and the health endpoint, never for control flow:
// chromedp resolves the binary itself at session creation.
func ProbeChrome(explicitPath string) ChromeInfo {
	path := explicitPath
	if path == "" {
		for _, name := range chromeNames {
			if p, err := exec.LookPath(name); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return ChromeInfo{}
	}

	info := ChromeInfo{Path: path, Found: true}
	out, err := exec.Command(path, "--version").Output()
	if err == nil {
		info.Version = strings.TrimSpace(string(out))
	}
	return info
}
