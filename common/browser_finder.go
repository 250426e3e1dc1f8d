package common

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ErrExecutableNotFound is returned when no browser executable can be found.
var ErrExecutableNotFound = errors.New("browser executable not found")

// executableNames are looked up in PATH, in order.
var executableNames = []string{ //nolint:gochecknoglobals
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// FindExecutable returns path if it is set and exists, otherwise the first
// browser found in PATH or in a well-known install location.
func FindExecutable(path string) (string, error) {
	return findExecutable(path, runtime.GOOS, exec.LookPath, fileExists)
}

func findExecutable(
	path, goos string,
	lookPath func(string) (string, error),
	exists func(string) bool,
) (string, error) {
	if path != "" {
		if exists(path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %q", ErrExecutableNotFound, path)
	}

	for _, name := range executableNames {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	for _, p := range knownLocations(goos) {
		if exists(p) {
			return p, nil
		}
	}

	return "", ErrExecutableNotFound
}

func knownLocations(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
