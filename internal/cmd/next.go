package cmd

import (
	"fmt"

	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/scheduler"
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next <plan>",
	Short: "Show the next batch of assignments without applying them",
	Long: `Compute which ready tasks would be paired with which available slots
under the project's concurrency cap. Nothing is persisted; run
'taskctl assign' to apply the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runNext,
}

var assignCmd = &cobra.Command{
	Use:   "assign <plan>",
	Short: "Assign ready tasks to available slots",
	Long: `Pair ready tasks with available slots up to the concurrency cap, create
their branches, and check them out in the slot worktrees.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(assignCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, g, err := a.currentProject(ctx)
	if err != nil {
		return err
	}

	plan, err := a.store.FindPlan(ctx, args[0])
	if err != nil {
		return err
	}
	batch, err := scheduler.New(a.store, g, a.log).NextBatch(ctx, plan.ID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(batch)
	}

	if len(batch) == 0 {
		fmt.Println("Nothing to schedule")
		return nil
	}
	fmt.Printf("Would assign %d task(s):\n", len(batch))
	printBatch(batch)
	return nil
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, g, err := a.currentProject(ctx)
	if err != nil {
		return err
	}

	plan, err := a.store.FindPlan(ctx, args[0])
	if err != nil {
		return err
	}
	applied, err := scheduler.New(a.store, g, a.log).AssignBatch(ctx, plan.ID)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		fmt.Println("Nothing to schedule")
		return nil
	}
	fmt.Printf("Assigned %d task(s):\n", len(applied))
	printBatch(applied)
	return nil
}

func printBatch(batch []scheduler.Assignment) {
	for _, as := range batch {
		fmt.Printf("  %s  %s\n", id.Short(as.Task.ID), as.Task.Title)
		fmt.Printf("    slot %s  branch %s\n", as.Slot.Name, as.Branch)
	}
}
