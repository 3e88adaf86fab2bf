package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	configDir  = ".config/notedeck"
	configFile = "config.json"
)

// rawConfig is the JSON-unmarshaling intermediary; durations arrive as
// strings and booleans as pointers so absent keys keep their defaults.
type rawConfig struct {
	Storage rawStorageConfig `json:"storage"`
	Sync    rawSyncConfig    `json:"sync"`
	Editor  rawEditorConfig  `json:"editor"`
	UI      rawUIConfig      `json:"ui"`
}

type rawStorageConfig struct {
	DataDir        string `json:"dataDir"`
	AttachmentsDir string `json:"attachmentsDir"`
}

type rawSyncConfig struct {
	Enabled  *bool  `json:"enabled"`
	InboxDir string `json:"inboxDir"`
}

type rawEditorConfig struct {
	SaveDebounce      string `json:"saveDebounce"`
	CommandTimeout    string `json:"commandTimeout"`
	ContentTimeout    string `json:"contentTimeout"`
	FontFamily        string `json:"fontFamily"`
	FontSize          *int   `json:"fontSize"`
	DoubleSpaced      *bool  `json:"doubleSpaced"`
	MarkdownShortcuts *bool  `json:"markdownShortcuts"`
	DateFormat        string `json:"dateFormat"`
	TimeFormat        string `json:"timeFormat"`
}

type rawUIConfig struct {
	ShowTabBar    *bool  `json:"showTabBar"`
	ShowStatusBar *bool  `json:"showStatusBar"`
	Theme         string `json:"theme"`
}

// Load loads configuration from the default location.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from a specific path.
// If path is empty, uses ~/.config/notedeck/config.json
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return finish(cfg) // Return defaults on error
		}
		path = filepath.Join(home, configDir, configFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg) // Return defaults if no config file
		}
		return nil, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	mergeConfig(cfg, &raw)
	return finish(cfg)
}

// finish expands paths, fills derived defaults, and validates.
func finish(cfg *Config) (*Config, error) {
	cfg.Storage.DataDir = ExpandPath(cfg.Storage.DataDir)
	if cfg.Storage.AttachmentsDir == "" {
		cfg.Storage.AttachmentsDir = filepath.Join(cfg.Storage.DataDir, "attachments")
	}
	cfg.Storage.AttachmentsDir = ExpandPath(cfg.Storage.AttachmentsDir)
	if cfg.Sync.InboxDir == "" {
		cfg.Sync.InboxDir = filepath.Join(cfg.Storage.DataDir, "sync-inbox")
	}
	cfg.Sync.InboxDir = ExpandPath(cfg.Sync.InboxDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfig merges raw config values into the config.
func mergeConfig(cfg *Config, raw *rawConfig) {
	// Storage
	if raw.Storage.DataDir != "" {
		cfg.Storage.DataDir = raw.Storage.DataDir
	}
	if raw.Storage.AttachmentsDir != "" {
		cfg.Storage.AttachmentsDir = raw.Storage.AttachmentsDir
	}

	// Sync
	if raw.Sync.Enabled != nil {
		cfg.Sync.Enabled = *raw.Sync.Enabled
	}
	if raw.Sync.InboxDir != "" {
		cfg.Sync.InboxDir = raw.Sync.InboxDir
	}

	// Editor
	if raw.Editor.SaveDebounce != "" {
		if d, err := time.ParseDuration(raw.Editor.SaveDebounce); err == nil {
			cfg.Editor.SaveDebounce = d
		}
	}
	if raw.Editor.CommandTimeout != "" {
		if d, err := time.ParseDuration(raw.Editor.CommandTimeout); err == nil {
			cfg.Editor.CommandTimeout = d
		}
	}
	if raw.Editor.ContentTimeout != "" {
		if d, err := time.ParseDuration(raw.Editor.ContentTimeout); err == nil {
			cfg.Editor.ContentTimeout = d
		}
	}
	if raw.Editor.FontFamily != "" {
		cfg.Editor.FontFamily = raw.Editor.FontFamily
	}
	if raw.Editor.FontSize != nil {
		cfg.Editor.FontSize = *raw.Editor.FontSize
	}
	if raw.Editor.DoubleSpaced != nil {
		cfg.Editor.DoubleSpaced = *raw.Editor.DoubleSpaced
	}
	if raw.Editor.MarkdownShortcuts != nil {
		cfg.Editor.MarkdownShortcuts = *raw.Editor.MarkdownShortcuts
	}
	if raw.Editor.DateFormat != "" {
		cfg.Editor.DateFormat = raw.Editor.DateFormat
	}
	if raw.Editor.TimeFormat != "" {
		cfg.Editor.TimeFormat = raw.Editor.TimeFormat
	}

	// UI
	if raw.UI.ShowTabBar != nil {
		cfg.UI.ShowTabBar = *raw.UI.ShowTabBar
	}
	if raw.UI.ShowStatusBar != nil {
		cfg.UI.ShowStatusBar = *raw.UI.ShowStatusBar
	}
	if raw.UI.Theme != "" {
		cfg.UI.Theme = raw.UI.Theme
	}
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDir, configFile)
}
