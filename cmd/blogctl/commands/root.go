// Package commands implements the blogctl command tree.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marshallshelly/blogstore/internal/blog"
	"github.com/marshallshelly/blogstore/internal/config"
	"github.com/marshallshelly/blogstore/internal/logging"
	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	dbURL      string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "blogctl",
	Short: "blogctl - manage the blogstore database",
	Long: `blogctl manages the PostgreSQL database behind blogstore.

Commands:
  migrate   - Apply, roll back and inspect schema migrations
  seed      - Load a small demo data set
  recount   - Recompute cached like and comment counters
  stats     - Summarize users, contents and interactions
  content   - List published contents

Settings come from blogstore.yaml (or --config) and BLOGSTORE_* environment
variables; --db overrides the database URL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default blogstore.yaml in . or $HOME/.config/blogstore)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// session is everything a command needs to talk to the database.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *runtime.DB
	client *blog.Client
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	txDefaults, err := cfg.Transaction.TxOptions()
	if err != nil {
		return nil, err
	}

	db, err := runtime.Connect(ctx, cfg.Database.Runtime(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client, err := blog.NewClient(
		builder.New(db, builder.WithTxDefaults(txDefaults), builder.WithLogger(logger)),
		blog.WithClientLogger(logger),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, db: db, client: client}, nil
}

func (s *session) executor() *migration.Executor {
	return migration.NewExecutor(s.db.Pool(),
		migration.WithLockID(s.cfg.Migrations.LockID),
		migration.WithLogger(s.logger),
	)
}

func (s *session) Close() {
	s.db.Close()
	_ = s.logger.Sync()
}
