package pr

import (
	"context"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

// Content holds a generated PR title and body.
type Content struct {
	Title string
	Body  string
}

// Builder assembles PR content for a task from store data.
type Builder struct {
	store    *store.Store
	template string
}

// NewBuilder creates a Builder. template overrides the built-in body
// template when non-empty.
func NewBuilder(st *store.Store, template string) *Builder {
	return &Builder{store: st, template: template}
}

// Build generates the PR title and body for a task. The body links the
// task's prerequisites to their pull requests where those exist.
func (b *Builder) Build(ctx context.Context, task *types.Task, plan *types.Plan) (*Content, error) {
	deps, err := b.store.Dependencies(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	data := TemplateData{
		Task:         task,
		PlanTitle:    plan.Title,
		BaseBranch:   plan.SourceBranch,
		ClosesClause: FormatClosesClause(ExtractIssueReference(task.Description)),
	}
	for _, dep := range deps {
		link := Dependency{Title: dep.Title}
		depPR, err := b.store.GetPRByTask(ctx, dep.ID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if depPR != nil {
			link.URL = depPR.URL
		}
		data.Dependencies = append(data.Dependencies, link)
	}

	body, err := RenderBody(b.template, data)
	if err != nil {
		return nil, err
	}
	return &Content{Title: task.Title, Body: body}, nil
}
