package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var slotCmd = &cobra.Command{
	Use:   "slot",
	Short: "Manage worktree slots",
}

var slotAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a worktree slot for the current project",
	Long: `Create a reusable execution slot backed by a git worktree. The worktree
is created on a holding branch (slot/<name>); the scheduler checks out
task branches into it as work is assigned.`,
	Args: cobra.ExactArgs(1),
	RunE: runSlotAdd,
}

var slotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current project's slots",
	RunE:  runSlotList,
}

var slotRemoveCmd = &cobra.Command{
	Use:   "remove <slot>",
	Short: "Remove a slot and its worktree",
	Args:  cobra.ExactArgs(1),
	RunE:  runSlotRemove,
}

var (
	slotPath  string
	slotForce bool
)

func init() {
	slotAddCmd.Flags().StringVar(&slotPath, "path", "", "worktree path (default: from config)")
	slotRemoveCmd.Flags().BoolVar(&slotForce, "force", false, "discard local changes in the worktree")

	slotCmd.AddCommand(slotAddCmd, slotListCmd, slotRemoveCmd)
	rootCmd.AddCommand(slotCmd)
}

func runSlotAdd(cmd *cobra.Command, args []string) error {
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

	name := args[0]
	path := slotPath
	if path == "" {
		path = filepath.Join(a.cfg.Scheduler.ResolveWorktreeDir(project.RepoPath), name)
	}

	// Worktrees cannot share a checked-out branch, so each slot parks on
	// its own holding branch until a task branch replaces it.
	holdingBranch := "slot/" + name
	if !g.BranchExists(ctx, holdingBranch) {
		if err := g.CreateBranch(ctx, holdingBranch, project.MainBranch); err != nil {
			return err
		}
	}
	if err := g.AddWorktree(ctx, path, holdingBranch); err != nil {
		return err
	}

	slot := &types.Slot{ProjectID: project.ID, Name: name, Path: path}
	if err := a.store.CreateSlot(ctx, slot); err != nil {
		// The store row is the source of truth; undo the worktree.
		_ = g.RemoveWorktree(ctx, path, true)
		return err
	}
	a.log.Info("slot created", "slot_id", slot.ID, "name", name, "path", path)

	fmt.Printf("Created slot %s (%s) at %s\n", name, id.Short(slot.ID), path)
	return nil
}

func runSlotList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	project, _, err := a.currentProject(ctx)
	if err != nil {
		return err
	}
	slots, err := a.store.ListSlots(ctx, project.ID, "")
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(slots)
	}

	if len(slots) == 0 {
		fmt.Println("No slots (add one with 'taskctl slot add <name>')")
		return nil
	}
	for _, sl := range slots {
		occupant := ""
		if sl.TaskID != "" {
			occupant = grayStyle.Render("  task " + id.Short(sl.TaskID))
		}
		fmt.Printf("%-10s %-12s %s%s\n", sl.Name, renderSlotStatus(sl.Status), sl.Path, occupant)
	}
	return nil
}

func runSlotRemove(cmd *cobra.Command, args []string) error {
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
	slot, err := a.store.FindSlot(ctx, project.ID, args[0])
	if err != nil {
		return err
	}

	if err := a.store.DeleteSlot(ctx, slot.ID); err != nil {
		return err
	}
	if err := g.RemoveWorktree(ctx, slot.Path, slotForce); err != nil {
		return err
	}
	_ = g.DeleteBranch(ctx, "slot/"+slot.Name, true)
	a.log.Info("slot removed", "slot_id", slot.ID, "name", slot.Name)

	fmt.Printf("Removed slot %s\n", slot.Name)
	return nil
}
