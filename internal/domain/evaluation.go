package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EvaluationType distinguishes per-task grades from derived program grades.
type EvaluationType string

const (
	EvaluationTask    EvaluationType = "task"
	EvaluationProgram EvaluationType = "program"
)

// Feedback is the qualitative output of the scoring oracle.
type Feedback struct {
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

// Evaluation is a graded outcome for a single task or a whole program.
// Task evaluations append once per submission attempt; program evaluations
// are derived by the aggregator and never mutated in place.
type Evaluation struct {
	ID           string         `json:"id"`
	Type         EvaluationType `json:"type"`
	TargetID     string         `json:"target_id"`
	Score        int            `json:"score"`
	DomainScores map[string]int `json:"domain_scores,omitempty"`
	Feedback     Feedback       `json:"feedback"`
	Passed       bool           `json:"passed"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewTaskEvaluation records the graded outcome of one task submission.
func NewTaskEvaluation(taskID string, score int, domainScores map[string]int, feedback Feedback, passed bool) (*Evaluation, error) {
	return newEvaluation(EvaluationTask, taskID, score, domainScores, feedback, passed)
}

// NewProgramEvaluation records an aggregated program grade. Only the
// evaluation aggregator should construct these.
func NewProgramEvaluation(programID string, score int, domainScores map[string]int, feedback Feedback, passed bool) (*Evaluation, error) {
	return newEvaluation(EvaluationProgram, programID, score, domainScores, feedback, passed)
}

func newEvaluation(typ EvaluationType, targetID string, score int, domainScores map[string]int, feedback Feedback, passed bool) (*Evaluation, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: evaluation target is required", ErrValidation)
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: score %d outside [0,100]", ErrValidation, score)
	}
	for domain, ds := range domainScores {
		if ds < 0 || ds > 100 {
			return nil, fmt.Errorf("%w: domain %q score %d outside [0,100]", ErrValidation, domain, ds)
		}
	}
	return &Evaluation{
		ID:           uuid.New().String(),
		Type:         typ,
		TargetID:     targetID,
		Score:        score,
		DomainScores: domainScores,
		Feedback:     feedback,
		Passed:       passed,
		CreatedAt:    time.Now(),
	}, nil
}
