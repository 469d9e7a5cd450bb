package cmd

import (
	"fmt"

	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/query"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current project's plans and slots",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	svc := query.New(a.store)
	plans, err := svc.ListPlans(ctx, project.ID, "")
	if err != nil {
		return err
	}
	slots, err := a.store.ListSlots(ctx, project.ID, "")
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", boldStyle.Render(project.Name), id.Short(project.ID))
	fmt.Printf("Repository:     %s\n", project.RepoPath)
	fmt.Printf("Max concurrent: %d\n\n", project.MaxConcurrent)

	if len(plans) == 0 {
		fmt.Println("No plans")
	} else {
		fmt.Println("Plans:")
		for _, p := range plans {
			if p.Status == types.PlanArchived {
				continue
			}
			detail, err := svc.GetPlan(ctx, p.ID)
			if err != nil {
				return err
			}
			fmt.Printf("  %s  %-12s %s\n", id.Short(p.ID), renderPlanStatus(p.Status), p.Title)
			if detail.Progress.Total > 0 {
				fmt.Printf("            %s\n", renderProgressBar(detail.Progress, 20))
			}
		}
	}

	fmt.Println()
	if len(slots) == 0 {
		fmt.Println("No slots")
		return nil
	}
	fmt.Println("Slots:")
	for _, sl := range slots {
		occupant := ""
		if sl.TaskID != "" {
			occupant = grayStyle.Render("  task " + id.Short(sl.TaskID))
		}
		fmt.Printf("  %-10s %-12s%s\n", sl.Name, renderSlotStatus(sl.Status), occupant)
	}
	return nil
}
