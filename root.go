package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coveyapp/covey/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// loadedCfg holds the configuration loaded by PersistentPreRunE. It is
// available to all subcommands after the root pre-run phase completes.
var loadedCfg *config.Config

// httpClientTimeout bounds every WebDAV request. Prevents hung
// connections from blocking CLI commands indefinitely.
const httpClientTimeout = 2 * time.Minute

// Log rotation limits for the optional log file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 5
	logMaxAgeDays = 30
)

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "covey",
		Short:   "Offline-first quail tracker sync",
		Long:    "Syncs the covey quail-tracking database across devices through a WebDAV server.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig reads the config file (or defaults) into loadedCfg.
func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loadedCfg = cfg

	return nil
}

// databasePath resolves the SQLite path from the --db flag or the
// platform default, creating the parent directory.
func databasePath() (string, error) {
	path := flagDBPath
	if path == "" {
		path = config.DefaultDatabasePath()
	}

	if path == "" {
		return "", fmt.Errorf("cannot determine data directory; pass --db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	return path, nil
}

// buildLogger creates an slog.Logger from the loaded config and CLI
// flags. Config provides the baseline; --verbose and --quiet override
// it because CLI flags always win. With log_file set, output rotates
// through lumberjack instead of going to stderr.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if loadedCfg != nil {
		switch loadedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr

	format := "auto"
	if loadedCfg != nil {
		format = loadedCfg.Logging.LogFormat

		if loadedCfg.Logging.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   loadedCfg.Logging.LogFile,
				MaxSize:    logMaxSizeMB,
				MaxBackups: logMaxBackups,
				MaxAge:     logMaxAgeDays,
				Compress:   true,
			}
			// A log file is never a terminal.
			if format == "auto" {
				format = "json"
			}
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts))
	case "text":
		return slog.New(slog.NewTextHandler(out, opts))
	default:
		// A terminal gets text, a pipe gets JSON.
		if isatty.IsTerminal(os.Stderr.Fd()) {
			return slog.New(slog.NewTextHandler(out, opts))
		}

		return slog.New(slog.NewJSONHandler(out, opts))
	}
}

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
