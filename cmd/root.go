package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/alert"
	"trenchwatch/mesh/internal/existence"
	"trenchwatch/mesh/internal/mesh"
	"trenchwatch/mesh/internal/store"
)

var (
	dbPath  string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Reputation mesh for token-launch communities",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	},
}

func Execute() {
	// Credentials live in .env during development; missing file is fine.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the mesh database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// DiscoverDB finds the database path using priority: env > flag > walk-up > XDG fallback.
// Unlike lookups, the env and flag paths need not exist yet; the store creates them.
func DiscoverDB() (string, error) {
	if envPath := os.Getenv("TRENCHWATCH_DB"); envPath != "" {
		return envPath, nil
	}

	if dbPath != "" {
		return dbPath, nil
	}

	// Walk up from CWD looking for an existing database.
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, ".trenchwatch.db")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// XDG fallback, created on first use.
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no database found (set TRENCHWATCH_DB or use --db): %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "trenchwatch")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return filepath.Join(dataDir, "mesh.db"), nil
}

// OpenDatabase discovers and opens the database.
func OpenDatabase() (*store.DB, error) {
	path, err := DiscoverDB()
	if err != nil {
		return nil, err
	}
	return store.OpenDB(path)
}

// buildDispatcher wires the configured alert channels in priority order.
// Returns nil when no channel is configured; the pipeline then skips alerting.
func buildDispatcher() *alert.Dispatcher {
	var channels []alert.Channel
	if token, channel := os.Getenv("SLACK_BOT_TOKEN"), os.Getenv("SLACK_ALERT_CHANNEL"); token != "" && channel != "" {
		channels = append(channels, alert.NewSlackChannel(token, channel))
	}
	if token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"); token != "" && chat != "" {
		channels = append(channels, alert.NewTelegramChannel(token, chat))
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewDispatcher(logger, channels...)
}

// buildEnricher assembles the full ingestion pipeline from the environment.
func buildEnricher(db *store.DB) (*mesh.Enricher, error) {
	scraperURL := os.Getenv("MESH_SCRAPER_URL")
	if scraperURL == "" {
		return nil, fmt.Errorf("MESH_SCRAPER_URL not set (the scraper service provides member lists)")
	}
	fetcher := mesh.NewHTTPMemberFetcher(scraperURL, os.Getenv("MESH_SCRAPER_API_KEY"))
	checker := existence.NewHTTPChecker(logger)
	return mesh.NewEnricher(db, fetcher, checker, buildDispatcher(), logger, mesh.DefaultConfig()), nil
}
