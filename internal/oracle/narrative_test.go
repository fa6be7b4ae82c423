package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pathwise-learning/pathwise/internal/content"
	"github.com/pathwise-learning/pathwise/internal/domain"
)

const treeYAML = `kind: narrative_tree
version: "1.0.0"
narrative:
  root: start
  nodes:
    start:
      id: start
      prompt: "Where do you want to begin?"
      children: [tech, care]
    tech:
      id: tech
      prompt: "Explore a technical career"
      domain: engineering
      children: [coding]
    care:
      id: care
      prompt: "Explore a care profession"
      domain: health
    coding:
      id: coding
      prompt: "Try a small coding exercise"
      domain: engineering
`

func narrativeFixture(t *testing.T) (*NarrativeGenerator, *domain.Scenario, *domain.Program) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tree.yaml"), []byte(treeYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	loader := content.NewLoader(content.NewFileSource(dir), nil, true, nil)

	scenario, err := domain.NewScenario(domain.ModeDiscovery, "1.0.0",
		domain.SourceRef{Type: "file", Path: "tree.yaml"},
		map[string]string{"en": "Careers"}, nil,
		domain.ScenarioPayload{Discovery: &domain.DiscoveryData{NarrativeKey: "tree", MaxTasks: 4}})
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	program, err := domain.NewProgram("user-1", scenario, domain.AttemptPractice)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	return NewNarrativeGenerator(loader), scenario, program
}

func TestNarrativeGenerator_StartsAtRoot(t *testing.T) {
	gen, scenario, program := narrativeFixture(t)

	next, err := gen.NextTask(context.Background(), scenario, program, nil)
	if err != nil {
		t.Fatalf("NextTask() error = %v", err)
	}
	if next.NodeID != "start" {
		t.Errorf("NodeID = %q; want start", next.NodeID)
	}
	if next.Template.Type != domain.TaskExploration {
		t.Errorf("Template.Type = %q; want exploration", next.Template.Type)
	}
	if next.Template.Index != 0 {
		t.Errorf("Template.Index = %d; want 0", next.Template.Index)
	}
}

func TestNarrativeGenerator_FollowsChildren(t *testing.T) {
	gen, scenario, program := narrativeFixture(t)
	program.Payload.Discovery.CurrentNode = "start"
	program.Payload.Discovery.VisitedNodes = []string{"start"}

	next, err := gen.NextTask(context.Background(), scenario, program, []*domain.Task{{Index: 0}})
	if err != nil {
		t.Fatalf("NextTask() error = %v", err)
	}
	if next.NodeID != "tech" {
		t.Errorf("NodeID = %q; want tech (first unvisited child)", next.NodeID)
	}
	if next.Template.Index != 1 {
		t.Errorf("Template.Index = %d; want 1", next.Template.Index)
	}
	if next.Template.Domain != "engineering" {
		t.Errorf("Template.Domain = %q; want engineering", next.Template.Domain)
	}
}

func TestNarrativeGenerator_BacktracksThenExhausts(t *testing.T) {
	gen, scenario, program := narrativeFixture(t)
	program.Payload.Discovery.CurrentNode = "tech"
	program.Payload.Discovery.VisitedNodes = []string{"start", "tech", "coding"}

	// tech's subtree is done; the search restarts from the root and finds
	// the unvisited sibling.
	next, err := gen.NextTask(context.Background(), scenario, program, nil)
	if err != nil {
		t.Fatalf("NextTask() error = %v", err)
	}
	if next.NodeID != "care" {
		t.Errorf("NodeID = %q; want care", next.NodeID)
	}

	program.Payload.Discovery.CurrentNode = "care"
	program.Payload.Discovery.VisitedNodes = []string{"start", "tech", "coding", "care"}
	_, err = gen.NextTask(context.Background(), scenario, program, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("NextTask(visited all) error = %v; want ErrExhausted", err)
	}
}

func TestNarrativeGenerator_RejectsNonDiscovery(t *testing.T) {
	gen, _, program := narrativeFixture(t)

	scenario, err := domain.NewScenario(domain.ModeAssessment, "1.0.0", domain.SourceRef{},
		map[string]string{"en": "Quiz"},
		[]domain.TaskTemplate{{Index: 0, Type: domain.TaskQuestion, Prompt: "q"}},
		domain.ScenarioPayload{Assessment: &domain.AssessmentData{QuestionBankKey: "bank", PassingThreshold: 60}})
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}

	if _, err := gen.NextTask(context.Background(), scenario, program, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("NextTask(assessment scenario) error = %v; want ErrValidation", err)
	}
}
