package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hotter6163/taskctl/internal/config"
	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/git"
	"github.com/hotter6163/taskctl/internal/logging"
	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

// app bundles the resources most commands need: loaded config, the
// store (holding the process lock), and the logger.
type app struct {
	cfg       *config.Config
	store     *store.Store
	log       *slog.Logger
	logCloser io.Closer
}

// openApp loads configuration, sets up logging, and opens the store.
// Callers must Close the returned app.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logging.Nop()
	var logCloser io.Closer
	if cfg.Logging.Enabled {
		log, logCloser, err = logging.New(logging.Options{
			Dir:        config.LogDir(),
			Level:      cfg.Logging.Level,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up logging: %w", err)
		}
	}

	st, err := store.Open(ctx, cfg.Database.ResolveDatabasePath())
	if err != nil {
		if logCloser != nil {
			logCloser.Close()
		}
		return nil, err
	}

	return &app{cfg: cfg, store: st, log: log, logCloser: logCloser}, nil
}

// Close releases the store lock and the log file.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// gitClient returns a git client rooted at the current directory.
func gitClient() (*git.Client, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return git.NewClient(cwd), nil
}

// currentProject resolves the project for the repository containing the
// current directory.
func (a *app) currentProject(ctx context.Context) (*types.Project, *git.Client, error) {
	g, err := gitClient()
	if err != nil {
		return nil, nil, err
	}
	if !g.IsRepo(ctx) {
		return nil, nil, errors.New("not inside a git repository")
	}
	root, err := g.MainRepoPath(ctx)
	if err != nil {
		return nil, nil, err
	}

	project, err := a.store.GetProjectByPath(ctx, root)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil, errors.Wrap(err, "project not initialized (run 'taskctl init')")
		}
		return nil, nil, err
	}
	return project, git.NewClient(root), nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
