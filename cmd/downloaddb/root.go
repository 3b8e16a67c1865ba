package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipstream/downloaddb/internal/config"
	"github.com/slipstream/downloaddb/internal/database"
	"github.com/slipstream/downloaddb/internal/logger"
	"github.com/slipstream/downloaddb/internal/repository"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	dbPath  string
	output  string

	cfg  *config.Config
	log  *logger.Logger
	db   *database.DB
	repo *repository.Repository
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "downloaddb",
		Short:         "Persistent store for download tasks and their progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file path")
	flags.StringVar(&a.dbPath, "db", "", "database file path (overrides database.path)")
	flags.StringVarP(&a.output, "output", "o", formatTable, "output format (table|json|yaml)")

	root.AddCommand(
		newInitCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newStatusCmd(a),
		newRemoveCmd(a),
		newProgressCmd(a),
		newStatsCmd(a),
		newClearCmd(a),
		newServeCmd(a),
		newDemoCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.output); err != nil {
		return err
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg

	a.log = logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Output:     cmd.ErrOrStderr(),
	})
	return nil
}

// store opens the configured database on first use and applies migrations.
func (a *app) store(ctx context.Context) (*repository.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}

	db, err := database.New(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return a.attach(ctx, db)
}

// memoryStore replaces the configured database with a private in-memory one.
func (a *app) memoryStore(ctx context.Context) (*repository.Repository, error) {
	db, err := database.NewMemory()
	if err != nil {
		return nil, err
	}
	return a.attach(ctx, db)
}

func (a *app) attach(ctx context.Context, db *database.DB) (*repository.Repository, error) {
	repo := repository.New(db.Conn(), a.log.Logger)
	if err := repo.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", db.Path(), err)
	}

	a.log.Debug().Str("path", db.Path()).Msg("database ready")
	a.db = db
	a.repo = repo
	return repo, nil
}

func (a *app) close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
		a.repo = nil
	}
	if a.log != nil {
		if cerr := a.log.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
