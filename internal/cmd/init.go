package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the current repository as a taskctl project",
	Long: `Register the repository containing the current directory as a taskctl
project. Creates the database schema if needed. Running init twice for
the same repository is a no-op.`,
	RunE: runInit,
}

var (
	initName          string
	initMaxConcurrent int
)

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "project name (default: repository directory name)")
	initCmd.Flags().IntVar(&initMaxConcurrent, "max-concurrent", 0, "concurrency cap (default: from config)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	g, err := gitClient()
	if err != nil {
		return err
	}
	if !g.IsRepo(ctx) {
		return errors.New("not inside a git repository")
	}
	root, err := g.MainRepoPath(ctx)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if existing, err := a.store.GetProjectByPath(ctx, root); err == nil {
		fmt.Printf("Project %s already initialized (%s)\n", existing.Name, id.Short(existing.ID))
		return nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		return err
	}

	name := initName
	if name == "" {
		name = filepath.Base(root)
	}
	maxConcurrent := initMaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = a.cfg.Scheduler.MaxConcurrent
	}

	project := &types.Project{
		Name:          name,
		RepoPath:      root,
		RemoteURL:     g.RemoteURL(ctx),
		MainBranch:    branch,
		MaxConcurrent: maxConcurrent,
	}
	if err := a.store.CreateProject(ctx, project); err != nil {
		return err
	}
	a.log.Info("project initialized", "project_id", project.ID, "repo", root)

	fmt.Printf("Initialized project %s (%s)\n", project.Name, id.Short(project.ID))
	fmt.Printf("  Repository:     %s\n", project.RepoPath)
	fmt.Printf("  Main branch:    %s\n", project.MainBranch)
	fmt.Printf("  Max concurrent: %d\n", project.MaxConcurrent)
	fmt.Printf("  Database:       %s\n", a.store.Path())
	return nil
}
