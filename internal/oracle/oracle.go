// Package oracle defines the scoring contract the lifecycle engine grades
// task submissions against, plus a deterministic answer-key scorer for
// closed-ended questions and a resilience wrapper for remote scorers.
package oracle

import (
	"context"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Result is one graded submission.
type Result struct {
	Score        int
	DomainScores map[string]int
	Feedback     domain.Feedback
	Passed       bool
}

// Scorer grades a single task submission. Implementations may be local
// and deterministic or remote and fallible; the lifecycle engine treats
// remote failures as upstream errors and leaves the task untouched.
type Scorer interface {
	Name() string
	Score(ctx context.Context, task *domain.Task, submission string) (*Result, error)
}

// NextTask is a generated continuation for a discovery program. NodeID
// names the narrative node the template came from so the engine can track
// the learner's position.
type NextTask struct {
	Template domain.TaskTemplate
	NodeID   string
}

// Generator produces the next task for an open-ended discovery program,
// given the tasks already worked. ErrExhausted signals the narrative has
// no further steps.
type Generator interface {
	NextTask(ctx context.Context, scenario *domain.Scenario, program *domain.Program, prior []*domain.Task) (*NextTask, error)
}
