// Package paths provides centralized path resolution for the nova monitors.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// BaseDir returns the nova base directory (~/.nova).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".nova"), nil
}

// DataPath returns a path within the nova data directory (~/.nova/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// SettingsPath returns the monitor settings file to use when none was given.
// Priority: ./nova.yaml (current dir) > ~/.nova/monitors.yaml.
// Returns ("", nil) if neither exists - running on defaults is a valid state.
func SettingsPath() (string, error) {
	if _, err := os.Stat("nova.yaml"); err == nil {
		abs, err := filepath.Abs("nova.yaml")
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return abs, nil
	}

	global, err := DataPath("monitors.yaml")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return "", nil
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
