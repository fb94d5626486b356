package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/backup"
	"github.com/dfbr/choose-your-own-adventure-world/internal/config"
	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
	"github.com/dfbr/choose-your-own-adventure-world/internal/logging"
	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// app bundles everything a command needs to answer review queries.
type app struct {
	cfg       *config.ProofreadConfig
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	persister *approval.FilePersister
	locked    bool
	texts     *content.FileStore
	engine    *review.Engine
}

// loadConfig resolves the effective configuration: config file, then
// environment, then command-line flags.
func loadConfig(cmd *cobra.Command) (*config.ProofreadConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.ProofreadConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("stories") {
		cfg.StoriesDir, _ = cmd.Flags().GetString("stories")
	}
	if cmd.Flags().Changed("state") {
		cfg.StateFile, _ = cmd.Flags().GetString("state")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp builds the review engine. Writers take the state lock, and a
// writer that finds legacy entries backs the state up and binds them.
func openApp(cmd *cobra.Command, writer bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	a := &app{
		cfg:       cfg,
		logger:    logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()),
		decisions: logging.NewDecisionLogger(filepath.Dir(cfg.StateFile), cfg.Logging.Level),
		persister: approval.NewFilePersister(cfg.StateFile),
	}

	if writer {
		if err := a.persister.Lock(); err != nil {
			a.Close()
			if errors.Is(err, approval.ErrLocked) {
				return nil, fmt.Errorf("%s is in use by another proofread session: %w", cfg.StateFile, err)
			}
			return nil, err
		}
		a.locked = true
	}

	a.texts = content.NewFileStore(cfg.StoriesDir)
	approvals, err := approval.Open(ctx, a.persister, fingerprint.NewEngine(a.texts),
		approval.WithLogger(a.logger),
		approval.WithDecisionLogger(a.decisions),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open approval state: %w", err)
	}

	a.engine = review.New(story.NewLoader(cfg.StoriesDir), a.texts, approvals,
		review.WithMaxDepth(cfg.MaxDepth),
		review.WithLogger(a.logger),
		review.WithDecisionLogger(a.decisions),
	)

	if writer && approvals.Unbound() > 0 {
		if err := a.migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// migrate backs up a state document holding legacy entries, then binds
// every legacy entry to the current text.
func (a *app) migrate(ctx context.Context) error {
	policy, err := backup.PolicyFor(a.cfg.Backup.MaxCount, a.cfg.Backup.MaxAge)
	if err != nil {
		return err
	}
	info, err := backup.Backup(a.cfg.StateFile, a.cfg.BackupDir(), policy)
	if err != nil {
		return fmt.Errorf("failed to back up state before migration: %w", err)
	}

	n, err := a.engine.Approvals().Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate approval state: %w", err)
	}
	attrs := []any{"entries", n}
	if info != nil {
		attrs = append(attrs, "backup", info.Path)
	}
	a.logger.Info("migrated legacy approvals", attrs...)
	return nil
}

// openStory loads a story through the engine.
func (a *app) openStory(cmd *cobra.Command, storyID string) (*story.Graph, error) {
	return a.engine.Open(cmd.Context(), storyID)
}

// Close releases the state lock and the decision log.
func (a *app) Close() {
	if a.locked {
		if err := a.persister.Unlock(); err != nil {
			a.logger.Warn("failed to release state lock", "error", err)
		}
		a.locked = false
	}
	a.decisions.Close()
}
