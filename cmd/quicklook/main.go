package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/obsproc/quicklook/internal/config"
	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/discovery"
	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/metrics"
	"github.com/obsproc/quicklook/internal/session"
	"github.com/obsproc/quicklook/internal/ui"
)

func main() {
	if err := logging.Init(); err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	}
	defer logging.Close()

	// Environment overrides may live in a local .env file.
	if _, err := os.Stat(".env"); err == nil {
		if err := config.LoadEnvFile(".env"); err != nil {
			log.Printf("Warning: failed to load .env: %v", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dsn := cfg.Store.DSN
	if dsn == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		dataDir := filepath.Join(homeDir, ".quicklook")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		dsn = filepath.Join(dataDir, "registry.db")
	}

	store, err := datastore.OpenSQLite(dsn)
	if err != nil {
		log.Fatalf("Failed to open dataset store: %v", err)
	}
	defer store.Close()

	metrics.Serve(cfg.MetricsAddr)

	sessions := session.NewManager()
	defer sessions.EndAll()

	app := ui.New(cfg, store, sessions)
	program := tea.NewProgram(app, tea.WithAltScreen())

	if cfg.Discovery.WatchStore {
		watcher, err := discovery.WatchStore(dsn, time.Second, func() {
			program.Send(ui.StoreChangedMsg{})
		})
		if err != nil {
			log.Printf("Warning: store watching disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}
}
