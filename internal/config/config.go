package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Storage StorageConfig `json:"storage"`
	Sync    SyncConfig    `json:"sync"`
	Editor  EditorConfig  `json:"editor"`
	UI      UIConfig      `json:"ui"`
}

// StorageConfig configures where local state lives.
type StorageConfig struct {
	DataDir        string `json:"dataDir"`        // notes and session databases (supports ~ expansion)
	AttachmentsDir string `json:"attachmentsDir"` // attachment payloads; default <dataDir>/attachments
}

// SyncConfig configures the sync inbox.
type SyncConfig struct {
	Enabled  bool   `json:"enabled"`
	InboxDir string `json:"inboxDir"` // default <dataDir>/sync-inbox
}

// EditorConfig configures the editor session pipeline.
type EditorConfig struct {
	// SaveDebounce is how long typing must pause before a save.
	SaveDebounce time.Duration `json:"saveDebounce"`
	// CommandTimeout bounds ordinary editor commands.
	CommandTimeout time.Duration `json:"commandTimeout"`
	// ContentTimeout bounds whole-document transfers.
	ContentTimeout    time.Duration `json:"contentTimeout"`
	FontFamily        string        `json:"fontFamily"`
	FontSize          int           `json:"fontSize"`
	DoubleSpaced      bool          `json:"doubleSpaced"`
	MarkdownShortcuts bool          `json:"markdownShortcuts"`
	DateFormat        string        `json:"dateFormat"`
	TimeFormat        string        `json:"timeFormat"`
}

// UIConfig configures host appearance.
type UIConfig struct {
	ShowTabBar    bool   `json:"showTabBar"`
	ShowStatusBar bool   `json:"showStatusBar"`
	Theme         string `json:"theme"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "~/.local/share/notedeck",
		},
		Sync: SyncConfig{
			Enabled: true,
		},
		Editor: EditorConfig{
			SaveDebounce:      150 * time.Millisecond,
			CommandTimeout:    5 * time.Second,
			ContentTimeout:    10 * time.Second,
			FontSize:          14,
			DateFormat:        "DD-MM-YYYY",
			TimeFormat:        "12-hour",
			MarkdownShortcuts: true,
		},
		UI: UIConfig{
			ShowTabBar:    true,
			ShowStatusBar: true,
			Theme:         "default",
		},
	}
}

// Validate checks the configuration for errors, repairing out-of-range
// values to their defaults.
func (c *Config) Validate() error {
	if c.Editor.SaveDebounce <= 0 {
		c.Editor.SaveDebounce = 150 * time.Millisecond
	}
	if c.Editor.CommandTimeout <= 0 {
		c.Editor.CommandTimeout = 5 * time.Second
	}
	if c.Editor.ContentTimeout <= 0 {
		c.Editor.ContentTimeout = 10 * time.Second
	}
	if c.Editor.FontSize <= 0 {
		c.Editor.FontSize = 14
	}
	return nil
}
