package pr

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

func TestExtractIssueReference(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"simple hash reference", "Fix the login bug #42", "#42"},
		{"fixes keyword", "Fix the login bug (fixes #123)", "#123"},
		{"closes keyword", "Add new feature closes #456", "#456"},
		{"resolves keyword", "resolves #789 - memory leak", "#789"},
		{"case insensitive", "FIXES #100", "#100"},
		{"no issue reference", "Just a regular task description", ""},
		{"empty text", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractIssueReference(tt.text); got != tt.expected {
				t.Errorf("ExtractIssueReference(%q) = %q, want %q", tt.text, got, tt.expected)
			}
		})
	}
}

func TestFormatClosesClause(t *testing.T) {
	if got := FormatClosesClause("#42"); got != "Closes #42" {
		t.Errorf("FormatClosesClause(#42) = %q", got)
	}
	if got := FormatClosesClause(""); got != "" {
		t.Errorf("FormatClosesClause(empty) = %q, want empty", got)
	}
}

func TestRenderBodyDefault(t *testing.T) {
	body, err := RenderBody("", TemplateData{
		Task: &types.Task{
			Title:       "Add caching layer",
			Description: "Introduce an LRU cache in front of the store (fixes #12)",
		},
		PlanTitle:    "Speed up reads",
		ClosesClause: "Closes #12",
		Dependencies: []Dependency{
			{Title: "Create schema", URL: "https://example.com/pull/1"},
			{Title: "Unlinked prerequisite"},
		},
	})
	if err != nil {
		t.Fatalf("RenderBody() error: %v", err)
	}

	for _, want := range []string{
		"## Summary",
		"Introduce an LRU cache",
		"Part of: Speed up reads",
		"## Depends on",
		"- Create schema (https://example.com/pull/1)",
		"- Unlinked prerequisite",
		"Closes #12",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderBodyNoDependencies(t *testing.T) {
	body, err := RenderBody("", TemplateData{
		Task:      &types.Task{Title: "t", Description: "d"},
		PlanTitle: "p",
	})
	if err != nil {
		t.Fatalf("RenderBody() error: %v", err)
	}
	if strings.Contains(body, "Depends on") {
		t.Errorf("empty dependency section rendered:\n%s", body)
	}
}

func TestRenderBodyCustomTemplate(t *testing.T) {
	body, err := RenderBody("{{.Task.Title}} -> {{.BaseBranch}}", TemplateData{
		Task:       &types.Task{Title: "custom"},
		BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("RenderBody() error: %v", err)
	}
	if body != "custom -> main" {
		t.Errorf("body = %q", body)
	}
}

func TestRenderBodyBadTemplate(t *testing.T) {
	if _, err := RenderBody("{{.Broken", TemplateData{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestBuilderLinksDependencyPRs(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "taskctl.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	project := &types.Project{Name: "demo", RepoPath: "/repo"}
	if err := st.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	plan := &types.Plan{ProjectID: project.ID, Title: "speed up reads", SourceBranch: "main"}
	if err := st.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}
	tasks := []*types.Task{
		{ID: "PRAAAAAA0001", PlanID: plan.ID, Title: "Create schema", Level: 0},
		{ID: "PRAAAAAA0002", PlanID: plan.ID, Title: "Add cache", Description: "cache reads, fixes #7", Level: 1},
	}
	edges := []*types.TaskDependency{{TaskID: "PRAAAAAA0002", DependsOnID: "PRAAAAAA0001"}}
	if err := st.CreateTasks(ctx, tasks, edges); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	slot := &types.Slot{ProjectID: project.ID, Name: "slot-1", Path: "/slots/wt1"}
	if err := st.CreateSlot(ctx, slot); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}
	if err := st.AssignTask(ctx, "PRAAAAAA0001", slot.ID, "feature/x/create-schema"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := st.StartTask(ctx, "PRAAAAAA0001", ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}
	if err := st.RecordPR(ctx, &types.PullRequest{
		TaskID:     "PRAAAAAA0001",
		Number:     1,
		URL:        "https://example.com/pull/1",
		Status:     types.PROpen,
		BaseBranch: "main",
		HeadBranch: "feature/x/create-schema",
	}); err != nil {
		t.Fatalf("RecordPR() error: %v", err)
	}

	task, err := st.GetTask(ctx, "PRAAAAAA0002")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	content, err := NewBuilder(st, "").Build(ctx, task, plan)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if content.Title != "Add cache" {
		t.Errorf("title = %q", content.Title)
	}
	for _, want := range []string{
		"Part of: speed up reads",
		"- Create schema (https://example.com/pull/1)",
		"Closes #7",
	} {
		if !strings.Contains(content.Body, want) {
			t.Errorf("body missing %q:\n%s", want, content.Body)
		}
	}
}
