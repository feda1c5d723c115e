package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/config"
	"github.com/solvaholic/rally/internal/db"
	"github.com/solvaholic/rally/internal/logger"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	logLevel     string

	// stdout is where command results go; tests replace it
	stdout io.Writer = os.Stdout
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rally",
	Short: "Fetch, normalize and query sports activity and chat data",
	Long: `Rally talks to the activity platform backend and turns its loosely shaped
responses into stable records.

The tool has these main modes:
  - normalize: Normalize a raw response read from a file or stdin
  - fetch: Retrieve activities, chats and messages from the backend
  - select: Query locally stored records
  - send, join, listen: Act on the backend as the configured user

All data is stored in a local SQLite database for fast querying.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logLevel
		if level == "" {
			level = os.Getenv(config.EnvLogLevel)
		}
		logger.Init(logger.Config{Level: level})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the command context so long-running commands stop cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, jsonl, table)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.rally/rally.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadSettings reads ~/.rally/config and the environment
func loadSettings() (*config.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	if logLevel == "" && settings.LogLevel != "" {
		logger.Init(logger.Config{Level: settings.LogLevel})
	}
	return settings, nil
}

// openDB opens the database named by --db, or the default one
func openDB() (*db.DB, error) {
	dbPathResolved := dbPath
	if dbPathResolved == "" {
		dbPathResolved = db.DefaultDBPath()
	}

	database, err := db.Open(dbPathResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// OutputJSON writes JSON to stdout with optional pretty printing
func OutputJSON(data interface{}) error {
	var output []byte
	var err error

	if outputFormat == "json" {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(stdout, string(output))
	return nil
}

// OutputError writes error message to stderr
func OutputError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
