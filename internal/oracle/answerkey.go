package oracle

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// AnswerKeyScorer grades closed-ended question tasks locally against the
// correct options embedded in the task content. Assessment mode never
// needs a remote oracle for these.
type AnswerKeyScorer struct{}

var _ Scorer = (*AnswerKeyScorer)(nil)

// NewAnswerKeyScorer creates the deterministic question scorer.
func NewAnswerKeyScorer() *AnswerKeyScorer {
	return &AnswerKeyScorer{}
}

func (s *AnswerKeyScorer) Name() string { return "answer-key" }

// Score grades a submission of comma-separated option IDs. Full credit
// requires selecting exactly the correct set; each wrong pick cancels one
// hit.
func (s *AnswerKeyScorer) Score(_ context.Context, task *domain.Task, submission string) (*Result, error) {
	if task.Type != domain.TaskQuestion {
		return nil, fmt.Errorf("%w: answer-key scorer only grades question tasks, got %q",
			domain.ErrValidation, task.Type)
	}
	if len(task.Content.Options) == 0 {
		return nil, fmt.Errorf("%w: task %s has no options to grade against",
			domain.ErrValidation, task.ID)
	}

	correct := make(map[string]bool, len(task.Content.Options))
	known := make(map[string]bool, len(task.Content.Options))
	totalCorrect := 0
	for _, opt := range task.Content.Options {
		known[opt.ID] = true
		if opt.Correct {
			correct[opt.ID] = true
			totalCorrect++
		}
	}
	if totalCorrect == 0 {
		return nil, fmt.Errorf("%w: task %s has no correct option", domain.ErrValidation, task.ID)
	}

	hits, misses := 0, 0
	seen := map[string]bool{}
	for _, raw := range strings.Split(submission, ",") {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !known[id] {
			return nil, fmt.Errorf("%w: unknown option %q", domain.ErrValidation, id)
		}
		if correct[id] {
			hits++
		} else {
			misses++
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: empty submission", domain.ErrValidation)
	}

	credit := hits - misses
	if credit < 0 {
		credit = 0
	}
	score := int(math.Round(100 * float64(credit) / float64(totalCorrect)))
	passed := hits == totalCorrect && misses == 0

	result := &Result{
		Score:  score,
		Passed: passed,
	}
	if task.Content.Domain != "" {
		result.DomainScores = map[string]int{task.Content.Domain: score}
	}
	if passed {
		result.Feedback = domain.Feedback{Summary: "All correct options selected."}
	} else {
		result.Feedback = domain.Feedback{
			Summary:      fmt.Sprintf("%d of %d correct options selected.", hits, totalCorrect),
			Improvements: []string{"Review the material for this question and try again."},
		}
	}
	return result, nil
}
