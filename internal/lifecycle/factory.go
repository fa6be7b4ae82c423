// Package lifecycle drives programs and tasks through their state
// machines: starting, advancing, grading submissions, and finishing.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/oracle"
)

// TaskFactory builds the tasks of a program. Template-driven modes spawn
// everything upfront; discovery generates one task at a time.
type TaskFactory interface {
	// Initial returns the tasks to create alongside the program.
	Initial(ctx context.Context, scenario *domain.Scenario, program *domain.Program) ([]*domain.Task, error)
	// Next returns the task for the program's current index, or
	// oracle.ErrExhausted when no further task can be produced.
	Next(ctx context.Context, scenario *domain.Scenario, program *domain.Program, prior []*domain.Task) (*domain.Task, error)
}

// TemplateFactory spawns every task from the scenario's template list at
// program start.
type TemplateFactory struct{}

var _ TaskFactory = (*TemplateFactory)(nil)

func (TemplateFactory) Initial(_ context.Context, scenario *domain.Scenario, program *domain.Program) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0, len(scenario.Templates))
	for _, tmpl := range scenario.Templates {
		task, err := domain.NewTask(program, tmpl)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Next never produces anything: template-driven programs have their full
// task list from the start.
func (TemplateFactory) Next(context.Context, *domain.Scenario, *domain.Program, []*domain.Task) (*domain.Task, error) {
	return nil, oracle.ErrExhausted
}

// DiscoveryFactory asks a generator for the next task's content at the
// moment of advance. It updates the program's discovery state in memory;
// the engine persists the program afterwards.
type DiscoveryFactory struct {
	generator oracle.Generator
}

var _ TaskFactory = (*DiscoveryFactory)(nil)

// NewDiscoveryFactory creates a factory over a generator.
func NewDiscoveryFactory(generator oracle.Generator) *DiscoveryFactory {
	return &DiscoveryFactory{generator: generator}
}

// Initial creates only the first task; the rest follow one by one as the
// learner advances.
func (f *DiscoveryFactory) Initial(ctx context.Context, scenario *domain.Scenario, program *domain.Program) ([]*domain.Task, error) {
	task, err := f.Next(ctx, scenario, program, nil)
	if err != nil {
		return nil, err
	}
	return []*domain.Task{task}, nil
}

func (f *DiscoveryFactory) Next(ctx context.Context, scenario *domain.Scenario, program *domain.Program, prior []*domain.Task) (*domain.Task, error) {
	if f.generator == nil {
		return nil, fmt.Errorf("%w: no discovery generator configured", domain.ErrUpstream)
	}
	next, err := f.generator.NextTask(ctx, scenario, program, prior)
	if err != nil {
		return nil, err
	}
	task, err := domain.NewTask(program, next.Template)
	if err != nil {
		return nil, err
	}
	if state := program.Payload.Discovery; state != nil {
		state.CurrentNode = next.NodeID
		state.VisitedNodes = append(state.VisitedNodes, next.NodeID)
	}
	return task, nil
}
