package cmd

import (
	"fmt"

	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/query"
	"github.com/hotter6163/taskctl/internal/scheduler"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List a plan's tasks in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show a task with its dependencies and pull request",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Mark an assigned task as in progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task>",
	Short: "Complete a task, free its slot, and unblock dependents",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var (
	taskStatusFilter string
	taskLevelFilter  int
	taskSessionID    string
	taskForce        bool
)

func init() {
	taskListCmd.Flags().StringVar(&taskStatusFilter, "status", "", "filter by status")
	taskListCmd.Flags().IntVar(&taskLevelFilter, "level", -1, "filter by dependency level")
	taskStartCmd.Flags().StringVar(&taskSessionID, "session", "", "implementer session identifier")
	taskCompleteCmd.Flags().BoolVar(&taskForce, "force", false, "complete without a merged pull request")

	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskStartCmd, taskCompleteCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := query.New(a.store).ListTasks(ctx, args[0], types.TaskStatus(taskStatusFilter), taskLevelFilter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(tasks)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("L%d %s  %-12s %s\n", t.Level, id.Short(t.ID), renderTaskStatus(t.Status), t.Title)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := query.New(a.store).GetTask(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(detail)
	}

	t := detail.Task
	fmt.Printf("%s %s\n", boldStyle.Render(t.Title), renderTaskStatus(t.Status))
	fmt.Printf("ID:    %s\n", t.ID)
	fmt.Printf("Plan:  %s (%s)\n", detail.Plan.Title, id.Short(detail.Plan.ID))
	fmt.Printf("Level: %d\n", t.Level)
	if t.EstimatedLines > 0 {
		fmt.Printf("Size:  ~%d lines\n", t.EstimatedLines)
	}
	if t.BranchName != "" {
		fmt.Printf("Branch: %s\n", t.BranchName)
	}
	if t.SlotID != "" {
		fmt.Printf("Slot:   %s\n", id.Short(t.SlotID))
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if len(detail.Dependencies) > 0 {
		fmt.Println("\nDepends on:")
		for _, dep := range detail.Dependencies {
			fmt.Printf("  %s  %-12s %s\n", id.Short(dep.ID), renderTaskStatus(dep.Status), dep.Title)
		}
	}
	if len(detail.Dependents) > 0 {
		fmt.Println("\nUnblocks:")
		for _, dep := range detail.Dependents {
			fmt.Printf("  %s  %-12s %s\n", id.Short(dep.ID), renderTaskStatus(dep.Status), dep.Title)
		}
	}
	if pr := detail.PullRequest; pr != nil {
		fmt.Printf("\nPull request: #%d (%s) %s\n", pr.Number, pr.Status, pr.URL)
	}
	return nil
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.store.FindTask(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.store.StartTask(ctx, task.ID, taskSessionID); err != nil {
		return err
	}
	a.log.Info("task started", "task_id", task.ID, "session_id", taskSessionID)
	fmt.Printf("Started %s: %s\n", id.Short(task.ID), task.Title)
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.store, nil, a.log)
	unblocked, err := sched.Complete(ctx, args[0], taskForce)
	if err != nil {
		return err
	}

	task, err := a.store.FindTask(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Completed %s: %s\n", id.Short(task.ID), task.Title)
	for _, t := range unblocked {
		fmt.Printf("  Unblocked %s: %s\n", id.Short(t.ID), t.Title)
	}
	return nil
}
