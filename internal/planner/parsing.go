package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/graph"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/types"
)

// defaultEstimatedLines is assumed when the model omits an estimate.
const defaultEstimatedLines = 50

// rawPlan is the JSON shape requested from the model.
type rawPlan struct {
	Tasks []rawTask `json:"tasks"`
}

type rawTask struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	EstimatedLines int      `json:"estimated_lines"`
	DependsOn      []string `json:"depends_on"`
}

// ParseResponse validates a model response and materialises it as tasks
// and edges ready for persistence. Provisional model-side ids are
// replaced with real ids; levels are computed from the dependency
// structure. Recoverable sloppiness (missing ids, self-dependencies,
// duplicate edges, missing estimates) is repaired; references to
// unknown tasks and cycles are errors.
func ParseResponse(planID, response string) ([]*types.Task, []*types.TaskDependency, error) {
	payload := extractJSON(response)
	if payload == "" {
		return nil, nil, errors.NewPlannerError(errors.PlannerParse, "response contains no JSON object", nil)
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, nil, errors.NewPlannerError(errors.PlannerParse, "response is not valid JSON", err)
	}
	if len(raw.Tasks) == 0 {
		return nil, nil, errors.NewPlannerError(errors.PlannerSchema, "decomposition has no tasks", nil)
	}

	// First pass: repair ids and fields, build the provisional-id index.
	realID := make(map[string]string, len(raw.Tasks))
	for i := range raw.Tasks {
		rt := &raw.Tasks[i]
		if rt.ID == "" {
			rt.ID = fmt.Sprintf("task_%03d", i+1)
		}
		if _, dup := realID[rt.ID]; dup {
			return nil, nil, errors.NewPlannerError(errors.PlannerSchema,
				"duplicate task id "+rt.ID, nil)
		}
		if strings.TrimSpace(rt.Title) == "" {
			return nil, nil, errors.NewPlannerError(errors.PlannerSchema,
				"task "+rt.ID+" has no title", nil)
		}
		if rt.Description == "" {
			rt.Description = rt.Title
		}
		if rt.EstimatedLines <= 0 {
			rt.EstimatedLines = defaultEstimatedLines
		}
		realID[rt.ID] = id.New()
	}

	// Second pass: resolve dependencies, dropping self-references and
	// duplicates, rejecting unknown targets.
	tasks := make([]*types.Task, 0, len(raw.Tasks))
	var edges []*types.TaskDependency
	for _, rt := range raw.Tasks {
		tasks = append(tasks, &types.Task{
			ID:             realID[rt.ID],
			PlanID:         planID,
			Title:          strings.TrimSpace(rt.Title),
			Description:    rt.Description,
			EstimatedLines: rt.EstimatedLines,
		})

		seen := make(map[string]bool, len(rt.DependsOn))
		for _, dep := range rt.DependsOn {
			if dep == rt.ID || seen[dep] {
				continue
			}
			target, ok := realID[dep]
			if !ok {
				return nil, nil, errors.NewPlannerError(errors.PlannerDependency,
					"task "+rt.ID+" depends on unknown task "+dep, nil)
			}
			seen[dep] = true
			edges = append(edges, &types.TaskDependency{
				TaskID:      realID[rt.ID],
				DependsOnID: target,
			})
		}
	}

	// Level assignment doubles as cycle detection.
	g, err := graph.Build(tasks, edges)
	if err != nil {
		if errors.Is(err, errors.ErrCycle) {
			return nil, nil, errors.NewPlannerError(errors.PlannerDependency,
				"decomposition contains a dependency cycle", err)
		}
		return nil, nil, err
	}
	for _, t := range tasks {
		t.Level = g.Level(t.ID)
	}

	return tasks, edges, nil
}

// extractJSON pulls the outermost JSON object out of a response that
// may wrap it in prose or a markdown fence.
func extractJSON(response string) string {
	s := response
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
