package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "scriptbox"

// UserConfiguration holds runtime paths resolved from the XDG Base Directory
// specification.
type UserConfiguration struct {
	ScriptsDir      string // ~/.config/scriptbox/scripts/
	PreferencesPath string // ~/.config/scriptbox/preferences.json
	HistoryPath     string // ~/.local/state/scriptbox/history
}

// NewUserConfiguration resolves XDG paths and creates the scripts directory
// if absent.
func NewUserConfiguration() (UserConfiguration, error) {
	scriptsDir := filepath.Join(xdg.ConfigHome, appName, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return UserConfiguration{}, fmt.Errorf("config: create scripts dir: %w", err)
	}

	prefsPath, err := xdg.ConfigFile(filepath.Join(appName, "preferences.json"))
	if err != nil {
		return UserConfiguration{}, fmt.Errorf("config: resolve preferences path: %w", err)
	}

	historyPath, err := xdg.StateFile(filepath.Join(appName, "history"))
	if err != nil {
		return UserConfiguration{}, fmt.Errorf("config: resolve history path: %w", err)
	}

	return UserConfiguration{
		ScriptsDir:      scriptsDir,
		PreferencesPath: prefsPath,
		HistoryPath:     historyPath,
	}, nil
}
