package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// saveConfig is the JSON-marshaling intermediary that uses string durations.
type saveConfig struct {
	Storage StorageConfig    `json:"storage"`
	Sync    saveSyncConfig   `json:"sync"`
	Editor  saveEditorConfig `json:"editor"`
	UI      saveUIConfig     `json:"ui"`
}

type saveSyncConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	InboxDir string `json:"inboxDir,omitempty"`
}

type saveEditorConfig struct {
	SaveDebounce      string `json:"saveDebounce,omitempty"`
	CommandTimeout    string `json:"commandTimeout,omitempty"`
	ContentTimeout    string `json:"contentTimeout,omitempty"`
	FontFamily        string `json:"fontFamily,omitempty"`
	FontSize          *int   `json:"fontSize,omitempty"`
	DoubleSpaced      *bool  `json:"doubleSpaced,omitempty"`
	MarkdownShortcuts *bool  `json:"markdownShortcuts,omitempty"`
	DateFormat        string `json:"dateFormat,omitempty"`
	TimeFormat        string `json:"timeFormat,omitempty"`
}

type saveUIConfig struct {
	ShowTabBar    *bool  `json:"showTabBar,omitempty"`
	ShowStatusBar *bool  `json:"showStatusBar,omitempty"`
	Theme         string `json:"theme,omitempty"`
}

// toSaveConfig converts Config to the JSON-serializable format.
func toSaveConfig(cfg *Config) saveConfig {
	return saveConfig{
		Storage: cfg.Storage,
		Sync: saveSyncConfig{
			Enabled:  &cfg.Sync.Enabled,
			InboxDir: cfg.Sync.InboxDir,
		},
		Editor: saveEditorConfig{
			SaveDebounce:      cfg.Editor.SaveDebounce.String(),
			CommandTimeout:    cfg.Editor.CommandTimeout.String(),
			ContentTimeout:    cfg.Editor.ContentTimeout.String(),
			FontFamily:        cfg.Editor.FontFamily,
			FontSize:          &cfg.Editor.FontSize,
			DoubleSpaced:      &cfg.Editor.DoubleSpaced,
			MarkdownShortcuts: &cfg.Editor.MarkdownShortcuts,
			DateFormat:        cfg.Editor.DateFormat,
			TimeFormat:        cfg.Editor.TimeFormat,
		},
		UI: saveUIConfig{
			ShowTabBar:    &cfg.UI.ShowTabBar,
			ShowStatusBar: &cfg.UI.ShowStatusBar,
			Theme:         cfg.UI.Theme,
		},
	}
}

// Save writes the config to ~/.config/notedeck/config.json
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	sc := toSaveConfig(cfg)
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SaveTheme updates only the theme name in config and saves.
func SaveTheme(themeName string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	cfg.UI.Theme = themeName
	return Save(cfg)
}
