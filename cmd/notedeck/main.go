package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notedeck/internal/app"
	"github.com/marcus/notedeck/internal/config"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath   = flag.String("config", "", "path to config file (default ~/.config/notedeck/config.json)")
	dataDir      = flag.String("data", "", "override the data directory")
	debugLog     = flag.Bool("debug", false, "enable debug logging to stderr")
	showVersion  = flag.Bool("version", false, "print version and exit")
	showVersionV = flag.Bool("v", false, "print version and exit (shorthand)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "notedeck - terminal note-taking with tabs, history, and sync\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Println(effectiveVersion())
		return
	}

	logger := slog.New(slog.DiscardHandler)
	if *debugLog {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "notedeck: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = config.ExpandPath(*dataDir)
		cfg.Storage.AttachmentsDir = filepath.Join(cfg.Storage.DataDir, "attachments")
		cfg.Sync.InboxDir = filepath.Join(cfg.Storage.DataDir, "sync-inbox")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "notedeck: %v\n", err)
		os.Exit(1)
	}

	model, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "notedeck: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		model.Close()
		fmt.Fprintf(os.Stderr, "notedeck: %v\n", err)
		os.Exit(1)
	}
}

// effectiveVersion prefers the ldflags-injected version and falls back
// to VCS metadata stamped by the toolchain.
func effectiveVersion() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	var revision, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if revision == "" {
		return Version
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "dev-" + revision + dirty
}
