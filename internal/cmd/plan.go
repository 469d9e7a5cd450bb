package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/planner"
	"github.com/hotter6163/taskctl/internal/query"
	"github.com/hotter6163/taskctl/internal/types"
	"github.com/spf13/cobra"
)

// structureMaxFiles caps the repository listing included in the
// planner prompt.
const structureMaxFiles = 200

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a draft plan for a change request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanCreate,
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate <plan>",
	Short: "Decompose a draft plan into tasks with the LLM planner",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanGenerate,
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan>",
	Short: "Show a plan with its tasks and critical path",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans for the current project",
	RunE:  runPlanList,
}

var planArchiveCmd = &cobra.Command{
	Use:   "archive <plan>",
	Short: "Archive a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanArchive,
}

var (
	planDescription   string
	planSourceBranch  string
	planStatusFilter  string
	planContextFiles  []string
	planWithStructure bool
	planMaxLines      int
)

func init() {
	planCreateCmd.Flags().StringVarP(&planDescription, "description", "d", "", "detailed change request description")
	planCreateCmd.Flags().StringVar(&planSourceBranch, "branch", "", "source branch (default: project main branch)")
	planGenerateCmd.Flags().StringArrayVar(&planContextFiles, "context-file", nil, "file whose contents inform the decomposition (repeatable)")
	planGenerateCmd.Flags().BoolVar(&planWithStructure, "structure", false, "include the repository file listing in the prompt")
	planGenerateCmd.Flags().IntVar(&planMaxLines, "max-lines", 0, "target maximum changed lines per task")
	planListCmd.Flags().StringVar(&planStatusFilter, "status", "", "filter by status")

	planCmd.AddCommand(planCreateCmd, planGenerateCmd, planShowCmd, planListCmd, planArchiveCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
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

	branch := planSourceBranch
	if branch == "" {
		branch = project.MainBranch
	}
	plan := &types.Plan{
		ProjectID:    project.ID,
		Title:        args[0],
		Description:  planDescription,
		SourceBranch: branch,
	}
	if err := a.store.CreatePlan(ctx, plan); err != nil {
		return err
	}
	a.log.Info("plan created", "plan_id", plan.ID, "title", plan.Title)

	fmt.Printf("Created plan %s: %s\n", id.Short(plan.ID), plan.Title)
	fmt.Printf("Run 'taskctl plan generate %s' to decompose it into tasks.\n", id.Short(plan.ID))
	return nil
}

func runPlanGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.store.FindPlan(ctx, args[0])
	if err != nil {
		return err
	}

	pctx, err := buildPromptContext(ctx)
	if err != nil {
		return err
	}

	p, err := planner.New(a.store, planner.Options{
		APIKey:     a.cfg.Planner.APIKey,
		Model:      a.cfg.Planner.Model,
		MaxRetries: a.cfg.Planner.MaxRetries,
		Timeout:    a.cfg.Planner.Timeout(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Decomposing %q...\n", plan.Title)
	tasks, err := p.Generate(ctx, plan.ID, pctx)
	if err != nil {
		return err
	}
	a.log.Info("plan generated", "plan_id", plan.ID, "tasks", len(tasks))

	fmt.Printf("Generated %d tasks:\n", len(tasks))
	for _, t := range tasks {
		deps := ""
		if t.Level > 0 {
			deps = grayStyle.Render(fmt.Sprintf(" (level %d)", t.Level))
		}
		fmt.Printf("  %s  %s%s\n", id.Short(t.ID), t.Title, deps)
	}
	return nil
}

// buildPromptContext assembles the optional planner inputs from the
// generate flags.
func buildPromptContext(ctx context.Context) (planner.PromptContext, error) {
	pctx := planner.PromptContext{MaxLinesPerTask: planMaxLines}

	for _, path := range planContextFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return pctx, errors.Wrapf(err, "read context file %s", path)
		}
		pctx.ContextFiles = append(pctx.ContextFiles, planner.ContextFile{
			Path:    path,
			Content: string(content),
		})
	}

	if planWithStructure {
		g, err := gitClient()
		if err != nil {
			return pctx, err
		}
		files, err := g.ListFiles(ctx)
		if err != nil {
			return pctx, err
		}
		if len(files) > structureMaxFiles {
			files = files[:structureMaxFiles]
		}
		pctx.ProjectStructure = strings.Join(files, "\n")
	}
	return pctx, nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := query.New(a.store).GetPlan(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(detail)
	}

	plan := detail.Plan
	fmt.Printf("%s %s\n", boldStyle.Render(plan.Title), renderPlanStatus(plan.Status))
	fmt.Printf("ID:     %s\n", plan.ID)
	fmt.Printf("Branch: %s\n", plan.SourceBranch)
	if plan.Description != "" {
		fmt.Printf("\n%s\n", plan.Description)
	}
	fmt.Printf("\nProgress: %s\n", renderProgressBar(detail.Progress, 20))

	if len(detail.Tasks) > 0 {
		fmt.Printf("\nTasks (%d levels):\n", detail.MaxLevel+1)
		for _, t := range detail.Tasks {
			branch := ""
			if t.BranchName != "" {
				branch = grayStyle.Render("  " + t.BranchName)
			}
			fmt.Printf("  L%d %s  %-12s %s%s\n", t.Level, id.Short(t.ID), renderTaskStatus(t.Status), t.Title, branch)
		}
	}
	if len(detail.CriticalPath) > 0 {
		shorts := make([]string, len(detail.CriticalPath))
		for i, taskID := range detail.CriticalPath {
			shorts[i] = id.Short(taskID)
		}
		fmt.Printf("\nCritical path: %s\n", strings.Join(shorts, " -> "))
	}
	return nil
}

func runPlanList(cmd *cobra.Command, args []string) error {
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

	plans, err := a.store.ListPlans(ctx, project.ID, types.PlanStatus(planStatusFilter))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(plans)
	}

	if len(plans) == 0 {
		fmt.Println("No plans")
		return nil
	}
	for _, p := range plans {
		fmt.Printf("%s  %-12s %s\n", id.Short(p.ID), renderPlanStatus(p.Status), p.Title)
	}
	return nil
}

func runPlanArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.store.FindPlan(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.store.ArchivePlan(ctx, plan.ID); err != nil {
		return err
	}
	fmt.Printf("Archived plan %s: %s\n", id.Short(plan.ID), plan.Title)
	return nil
}
