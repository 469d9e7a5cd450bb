package cmd

import (
	"fmt"

	"github.com/hotter6163/taskctl/internal/forge"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/scheduler"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh pull request statuses from the forge",
	Long: `Query the forge for every tracked open pull request and apply the
observed statuses. Merged pull requests complete their tasks, free
their slots, and unblock dependents.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
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

	open, err := a.store.ListOpenPRs(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Println("No open pull requests to sync")
		return nil
	}

	forgeClient := forge.NewClient(project.RepoPath)
	if err := forgeClient.CheckAvailable(ctx); err != nil {
		return err
	}
	sched := scheduler.New(a.store, nil, a.log)

	var synced, merged, failed int
	for _, record := range open {
		info, err := forgeClient.GetPR(ctx, record.Number)
		if err != nil {
			a.log.Warn("pr lookup failed", "number", record.Number, "error", err)
			fmt.Printf("  #%d: lookup failed: %v\n", record.Number, err)
			failed++
			continue
		}
		observed := info.Status()

		if observed == types.PRMerged {
			if err := a.store.SyncPR(ctx, record.ID, observed); err != nil {
				return err
			}
			unblocked, err := sched.Complete(ctx, record.TaskID, false)
			if err != nil {
				return err
			}
			fmt.Printf("  #%d merged; completed task %s", record.Number, id.Short(record.TaskID))
			if len(unblocked) > 0 {
				fmt.Printf(", unblocked %d task(s)", len(unblocked))
			}
			fmt.Println()
			merged++
			continue
		}

		if observed != record.Status {
			if err := a.store.SyncPR(ctx, record.ID, observed); err != nil {
				return err
			}
			fmt.Printf("  #%d: %s -> %s\n", record.Number, record.Status, observed)
		}
		synced++
	}

	fmt.Printf("Synced %d pull request(s): %d merged, %d failed lookups\n", len(open), merged, failed)
	return nil
}
