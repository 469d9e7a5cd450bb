package planner

import (
	"strings"

	"github.com/hotter6163/taskctl/internal/types"
)

// snippetMaxLines caps how much of a context file reaches the prompt.
const snippetMaxLines = 40

// PromptContext carries optional inputs that sharpen a decomposition:
// a project structure digest, excerpts of relevant files, and a target
// size per task. The zero value adds nothing to the prompt.
type PromptContext struct {
	ProjectStructure string
	ContextFiles     []ContextFile
	MaxLinesPerTask  int
}

// ContextFile is a named file excerpt included in the prompt. Content
// beyond snippetMaxLines is truncated before rendering.
type ContextFile struct {
	Path    string
	Content string
}

type promptData struct {
	Title            string
	Description      string
	SourceBranch     string
	ProjectStructure string
	ContextFiles     []ContextFile
	MaxLinesPerTask  int
}

func (p *Planner) renderPrompt(plan *types.Plan, pctx PromptContext) (string, error) {
	files := make([]ContextFile, len(pctx.ContextFiles))
	for i, f := range pctx.ContextFiles {
		files[i] = ContextFile{Path: f.Path, Content: truncateSnippet(f.Content)}
	}

	var b strings.Builder
	err := p.template.Execute(&b, promptData{
		Title:            plan.Title,
		Description:      plan.Description,
		SourceBranch:     plan.SourceBranch,
		ProjectStructure: pctx.ProjectStructure,
		ContextFiles:     files,
		MaxLinesPerTask:  pctx.MaxLinesPerTask,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// truncateSnippet keeps the first snippetMaxLines lines of a context
// file and marks the cut.
func truncateSnippet(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= snippetMaxLines {
		return content
	}
	return strings.Join(lines[:snippetMaxLines], "\n") + "\n... (truncated)"
}

const decomposePromptTemplate = `You are a technical planner. Decompose the following change request into independent implementation tasks that can each become one pull request.

Change request: {{.Title}}
{{if .Description}}Details: {{.Description}}
{{end}}Base branch: {{.SourceBranch}}
{{if .ProjectStructure}}
Project structure:
{{.ProjectStructure}}
{{end}}{{range .ContextFiles}}
--- {{.Path}} ---
{{.Content}}
{{end}}
Rules:
- Each task must be a self-contained unit of work producing one reviewable pull request.
- Prefer small tasks; estimate the changed lines of code for each.
{{if .MaxLinesPerTask}}- Keep each task under roughly {{.MaxLinesPerTask}} changed lines; split larger work.
{{end}}- Express ordering constraints as dependencies on other task ids. Tasks without dependencies can run in parallel.
- Do not invent dependencies that are not strictly required.

Respond with ONLY a JSON object in this exact shape:
{
  "tasks": [
    {
      "id": "task_001",
      "title": "short imperative title",
      "description": "what to implement and where",
      "estimated_lines": 120,
      "depends_on": []
    }
  ]
}`
