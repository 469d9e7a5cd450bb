// Package graph builds the immutable dependency graph of a plan's
// tasks: per-task level (DAG depth), forward and reverse adjacency,
// level buckets, ready-set computation, and critical-path extraction.
//
// Build failures are fatal for their plan but never touch the store;
// callers surface them as domain errors.
package graph

import (
	"sort"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/types"
)

// Graph is an immutable view of one plan's dependency structure.
// Construct with Build; do not mutate after construction.
type Graph struct {
	tasks map[string]*types.Task
	order []string // task ids in input order, for deterministic iteration

	dependencies map[string][]string // task -> tasks it depends on
	dependents   map[string][]string // task -> tasks that depend on it
	levels       map[string]int
	byLevel      map[int][]string
	maxLevel     int
}

// Build constructs the graph from a plan's tasks and edges. It rejects
// edges whose endpoints are unknown, self-edges, duplicates, and
// cycles. On a cycle it fails with a CycleError naming the first task
// the traversal saw on the cycle.
func Build(tasks []*types.Task, edges []*types.TaskDependency) (*Graph, error) {
	g := &Graph{
		tasks:        make(map[string]*types.Task, len(tasks)),
		order:        make([]string, 0, len(tasks)),
		dependencies: make(map[string][]string, len(tasks)),
		dependents:   make(map[string][]string, len(tasks)),
		levels:       make(map[string]int, len(tasks)),
		byLevel:      make(map[int][]string),
	}

	for _, t := range tasks {
		if _, dup := g.tasks[t.ID]; dup {
			return nil, errors.NewAlreadyExistsError("task", t.ID)
		}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}

	if err := ValidateEdges(tasks, edges); err != nil {
		return nil, err
	}

	for _, e := range edges {
		g.dependencies[e.TaskID] = append(g.dependencies[e.TaskID], e.DependsOnID)
		g.dependents[e.DependsOnID] = append(g.dependents[e.DependsOnID], e.TaskID)
	}

	if err := g.assignLevels(); err != nil {
		return nil, err
	}

	for _, id := range g.order {
		lvl := g.levels[id]
		g.byLevel[lvl] = append(g.byLevel[lvl], id)
		if lvl > g.maxLevel {
			g.maxLevel = lvl
		}
	}

	return g, nil
}

// assignLevels runs a depth-first traversal from every unvisited node,
// detecting back-edges with a per-path visiting set (so diamond shapes
// traverse correctly) and setting level(v) = 1 + max(level(dep)) on
// post-order, 0 for roots.
func (g *Graph) assignLevels() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	stateOf := make(map[string]int, len(g.tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch stateOf[id] {
		case done:
			return nil
		case visiting:
			return errors.NewCycleError(id)
		}
		stateOf[id] = visiting

		level := 0
		for _, dep := range g.dependencies[id] {
			if err := visit(dep); err != nil {
				return err
			}
			if l := g.levels[dep] + 1; l > level {
				level = l
			}
		}

		stateOf[id] = done
		g.levels[id] = level
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEdges checks an externally-supplied edge set against a task
// set: every endpoint must exist, no self-edges, no duplicates. Cycles
// are caught later by Build's traversal; this validation is cheap
// enough to run on its own for early rejection.
func ValidateEdges(tasks []*types.Task, edges []*types.TaskDependency) error {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	type pair struct{ a, b string }
	seen := make(map[pair]bool, len(edges))

	for _, e := range edges {
		if !known[e.TaskID] {
			return errors.NewNotFoundError("task", e.TaskID)
		}
		if !known[e.DependsOnID] {
			return errors.NewNotFoundError("task", e.DependsOnID)
		}
		if e.TaskID == e.DependsOnID {
			return errors.Wrapf(errors.ErrCycle, "task %s depends on itself", e.TaskID)
		}
		p := pair{e.TaskID, e.DependsOnID}
		if seen[p] {
			return errors.NewAlreadyExistsError("dependency", e.TaskID+" -> "+e.DependsOnID)
		}
		seen[p] = true
	}
	return nil
}

// Level returns the DAG depth of a task, or -1 if unknown.
func (g *Graph) Level(taskID string) int {
	if lvl, ok := g.levels[taskID]; ok {
		return lvl
	}
	return -1
}

// MaxLevel returns the highest level in the graph.
func (g *Graph) MaxLevel() int { return g.maxLevel }

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int { return len(g.tasks) }

// Task returns the task with the given id, or nil.
func (g *Graph) Task(taskID string) *types.Task { return g.tasks[taskID] }

// TaskIDs returns every task id in input order.
func (g *Graph) TaskIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the ids a task depends on, in edge input order.
func (g *Graph) Dependencies(taskID string) []string {
	return append([]string(nil), g.dependencies[taskID]...)
}

// Dependents returns the ids that depend on a task, in edge input order.
func (g *Graph) Dependents(taskID string) []string {
	return append([]string(nil), g.dependents[taskID]...)
}

// AtLevel returns the task ids at a given level, in input order.
func (g *Graph) AtLevel(level int) []string {
	return append([]string(nil), g.byLevel[level]...)
}

// ReadySet returns the tasks that can be scheduled given the set of
// completed task ids: status pending or ready, every dependency
// completed. Pure and idempotent; results are sorted by level then id
// so repeated calls return identical slices.
func (g *Graph) ReadySet(completed map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != types.TaskPending && t.Status != types.TaskReady {
			continue
		}
		ok := true
		for _, dep := range g.dependencies[id] {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		li, lj := g.levels[ready[i]], g.levels[ready[j]]
		if li != lj {
			return li < lj
		}
		return ready[i] < ready[j]
	})
	return ready
}

// UnblockedBy returns the ids of tasks whose dependencies are all in
// completed and that directly depend on taskID. Used after a completion
// to report which tasks just became eligible.
func (g *Graph) UnblockedBy(taskID string, completed map[string]bool) []string {
	var unblocked []string
	for _, id := range g.dependents[taskID] {
		t := g.tasks[id]
		if t.Status != types.TaskPending && t.Status != types.TaskReady {
			continue
		}
		ok := true
		for _, dep := range g.dependencies[id] {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			unblocked = append(unblocked, id)
		}
	}
	return unblocked
}

// CriticalPath returns the longest dependency chain, root first.
// Starting from the first-seen task at the maximum level, it follows
// the dependency with the highest level at each step (first-seen wins
// ties) and returns the reversed walk.
func (g *Graph) CriticalPath() []string {
	if len(g.tasks) == 0 {
		return nil
	}

	var start string
	for _, id := range g.order {
		if g.levels[id] == g.maxLevel {
			start = id
			break
		}
	}

	path := []string{start}
	current := start
	for {
		deps := g.dependencies[current]
		if len(deps) == 0 {
			break
		}
		best := deps[0]
		for _, dep := range deps[1:] {
			if g.levels[dep] > g.levels[best] {
				best = dep
			}
		}
		path = append(path, best)
		current = best
	}

	// Reverse so the path reads root to leaf.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
