package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/content"
	"github.com/pathwise-learning/pathwise/internal/domain"
)

// ErrExhausted signals the narrative tree offers no further step from the
// learner's current position.
var ErrExhausted = errors.New("narrative exhausted")

// NarrativeGenerator walks a scenario's narrative tree depth-first,
// yielding one exploration task per unvisited node. It is deterministic:
// the same visit history always produces the same next node.
type NarrativeGenerator struct {
	loader *content.Loader
}

var _ Generator = (*NarrativeGenerator)(nil)

// NewNarrativeGenerator creates a generator backed by the content loader.
func NewNarrativeGenerator(loader *content.Loader) *NarrativeGenerator {
	return &NarrativeGenerator{loader: loader}
}

// NextTask returns the first unvisited child of the learner's current
// node, falling back to the root when the program has not started.
func (g *NarrativeGenerator) NextTask(ctx context.Context, scenario *domain.Scenario, program *domain.Program, prior []*domain.Task) (*NextTask, error) {
	if scenario.Payload.Discovery == nil {
		return nil, fmt.Errorf("%w: scenario %s is not a discovery scenario", domain.ErrValidation, scenario.ID)
	}
	if program.Payload.Discovery == nil {
		return nil, fmt.Errorf("%w: program %s carries no discovery state", domain.ErrValidation, program.ID)
	}

	doc, _, err := g.loader.Load(ctx, scenario.Payload.Discovery.NarrativeKey, "en")
	if err != nil {
		return nil, err
	}
	if doc.Kind != content.KindNarrative || doc.Narrative == nil {
		return nil, fmt.Errorf("%w: document %q is not a narrative tree", domain.ErrValidation, doc.Key)
	}
	tree := doc.Narrative

	state := program.Payload.Discovery
	visited := make(map[string]bool, len(state.VisitedNodes))
	for _, id := range state.VisitedNodes {
		visited[id] = true
	}

	nodeID := g.pick(tree, state.CurrentNode, visited)
	if nodeID == "" {
		return nil, ErrExhausted
	}
	node := tree.Nodes[nodeID]

	return &NextTask{
		NodeID: nodeID,
		Template: domain.TaskTemplate{
			Index:    len(prior),
			Type:     domain.TaskExploration,
			Prompt:   node.Prompt,
			Domain:   node.Domain,
			MaxScore: 100,
		},
	}, nil
}

// pick returns the next unvisited node id, or "" when none remains. From
// the current node it tries children in order, then backtracks toward the
// root.
func (g *NarrativeGenerator) pick(tree *content.NarrativeTree, current string, visited map[string]bool) string {
	if current == "" {
		if !visited[tree.Root] {
			return tree.Root
		}
		current = tree.Root
	}
	if next := g.descend(tree, current, visited, map[string]bool{}); next != "" {
		return next
	}
	if current != tree.Root {
		return g.descend(tree, tree.Root, visited, map[string]bool{})
	}
	return ""
}

func (g *NarrativeGenerator) descend(tree *content.NarrativeTree, from string, visited, seen map[string]bool) string {
	if seen[from] {
		return ""
	}
	seen[from] = true
	node, ok := tree.Nodes[from]
	if !ok {
		return ""
	}
	for _, child := range node.Children {
		if !visited[child] {
			return child
		}
	}
	for _, child := range node.Children {
		if next := g.descend(tree, child, visited, seen); next != "" {
			return next
		}
	}
	return ""
}
