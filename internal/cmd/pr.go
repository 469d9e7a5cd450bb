package cmd

import (
	"fmt"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/forge"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/pr"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Manage pull requests",
}

var prCreateCmd = &cobra.Command{
	Use:   "create <task>",
	Short: "Push a task's branch and open its pull request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRCreate,
}

var (
	prDraft bool
	prReady bool
)

func init() {
	prCreateCmd.Flags().BoolVar(&prDraft, "draft", false, "create as a draft (overrides config)")
	prCreateCmd.Flags().BoolVar(&prReady, "ready", false, "create ready for review (overrides config)")
	prCmd.AddCommand(prCreateCmd)
	rootCmd.AddCommand(prCmd)
}

func runPRCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	project, g, err := a.currentProject(ctx)
	if err != nil {
		return err
	}

	task, err := a.store.FindTask(ctx, args[0])
	if err != nil {
		return err
	}
	if task.BranchName == "" || task.SlotID == "" {
		return errors.NewInvalidTransitionError("task", task.Status.String(), types.TaskPRCreated.String()).
			WithReason("task has no branch; assign it first")
	}
	if existing, err := a.store.GetPRByTask(ctx, task.ID); err == nil {
		return errors.Wrapf(errors.ErrAlreadyExists, "task already has pull request #%d", existing.Number)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	plan, err := a.store.GetPlan(ctx, task.PlanID)
	if err != nil {
		return err
	}
	slot, err := a.store.GetSlot(ctx, task.SlotID)
	if err != nil {
		return err
	}

	forgeClient := forge.NewClient(project.RepoPath)
	if err := forgeClient.CheckAvailable(ctx); err != nil {
		return err
	}

	content, err := pr.NewBuilder(a.store, a.cfg.PR.Template).Build(ctx, task, plan)
	if err != nil {
		return err
	}

	fmt.Printf("Pushing %s...\n", task.BranchName)
	if err := g.Push(ctx, slot.Path, task.BranchName); err != nil {
		return err
	}

	draft := a.cfg.PR.Draft
	if prDraft {
		draft = true
	}
	if prReady {
		draft = false
	}
	info, err := forgeClient.CreatePR(ctx, forge.CreatePROptions{
		Title: content.Title,
		Body:  content.Body,
		Base:  plan.SourceBranch,
		Head:  task.BranchName,
		Draft: draft,
	})
	if err != nil {
		return err
	}

	record := &types.PullRequest{
		TaskID:     task.ID,
		Number:     info.Number,
		URL:        info.URL,
		Status:     info.Status(),
		BaseBranch: plan.SourceBranch,
		HeadBranch: task.BranchName,
	}
	if err := a.store.RecordPR(ctx, record); err != nil {
		return err
	}
	a.log.Info("pull request created", "task_id", task.ID, "number", info.Number)

	fmt.Printf("Created PR #%d for %s: %s\n", info.Number, id.Short(task.ID), info.URL)
	return nil
}
