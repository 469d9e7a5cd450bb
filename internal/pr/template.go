// Package pr generates pull request titles and bodies for tasks. The
// body is rendered from a Go text/template, either the built-in one or
// a user-supplied override from configuration.
package pr

import (
	"bytes"
	"regexp"
	"text/template"

	"github.com/hotter6163/taskctl/internal/types"
)

// Dependency is a completed prerequisite referenced from the PR body.
type Dependency struct {
	Title string
	URL   string
}

// TemplateData contains all data available to PR body templates.
type TemplateData struct {
	// Task is the task the PR implements.
	Task *types.Task
	// PlanTitle is the owning plan's change request.
	PlanTitle string
	// BaseBranch is the branch the PR targets.
	BaseBranch string
	// Dependencies lists the task's prerequisites with their PR links.
	Dependencies []Dependency
	// ClosesClause is the issue-closing footer, when the task
	// description references an issue.
	ClosesClause string
}

const defaultTemplate = `## Summary

{{.Task.Description}}

Part of: {{.PlanTitle}}
{{- if .Dependencies}}

## Depends on
{{- range .Dependencies}}
- {{.Title}}{{if .URL}} ({{.URL}}){{end}}
{{- end}}
{{- end}}
{{- if .ClosesClause}}

{{.ClosesClause}}
{{- end}}
`

// RenderBody renders a PR body template with the given data. An empty
// template string selects the built-in template.
func RenderBody(tmplStr string, data TemplateData) (string, error) {
	if tmplStr == "" {
		tmplStr = defaultTemplate
	}
	tmpl, err := template.New("pr-body").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// issuePatterns match issue references in task text, most specific
// first.
var issuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:fixes|fix|closes|close|resolves|resolve)\s*#(\d+)`),
	regexp.MustCompile(`(?i)\((?:fixes|fix|closes|close|resolves|resolve)\s*#(\d+)\)`),
	regexp.MustCompile(`#(\d+)`),
}

// ExtractIssueReference extracts an issue reference from text.
// Supports formats: #123, fixes #123, closes #123, resolves #123.
func ExtractIssueReference(text string) string {
	for _, re := range issuePatterns {
		matches := re.FindStringSubmatch(text)
		if len(matches) >= 2 {
			return "#" + matches[1]
		}
	}
	return ""
}

// FormatClosesClause formats an issue reference for the PR body footer.
// Returns empty for empty input.
func FormatClosesClause(issue string) string {
	if issue == "" {
		return ""
	}
	return "Closes " + issue
}
