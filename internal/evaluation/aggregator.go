// Package evaluation derives program-level grades from per-task
// evaluations.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Aggregate is the result of one aggregation pass over a program.
type Aggregate struct {
	Evaluation         *domain.Evaluation
	EvaluatedTaskCount int
	TotalTaskCount     int
}

// Aggregator recomputes a program's grade from scratch on every call:
// each task contributes its latest evaluation only, tasks without one are
// excluded, and the result is deterministic for a given evaluation
// history.
type Aggregator struct {
	repos  domain.Repositories
	logger *slog.Logger
}

// NewAggregator creates an aggregator over the given backend.
func NewAggregator(repos domain.Repositories, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{repos: repos, logger: logger}
}

// Aggregate grades the program, appends a program-type evaluation, and
// mirrors the score onto the program row. A terminal program still gets
// the evaluation appended; its row is left untouched.
func (a *Aggregator) Aggregate(ctx context.Context, programID string) (*Aggregate, error) {
	program, err := a.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		return nil, err
	}
	scenario, err := a.repos.Scenarios.FindByID(ctx, program.ScenarioID)
	if err != nil {
		return nil, err
	}
	tasks, err := a.repos.Tasks.FindByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	var latest []*domain.Evaluation
	for _, task := range tasks {
		eval, err := a.repos.Evaluations.Latest(ctx, domain.EvaluationTask, task.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		latest = append(latest, eval)
	}

	overall := meanScore(latest)
	domainScores := meanDomainScores(latest)
	passed := a.passed(scenario, overall, len(latest), program.TotalTaskCount)

	feedback := domain.Feedback{
		Summary: fmt.Sprintf("%d of %d tasks evaluated.", len(latest), program.TotalTaskCount),
	}
	eval, err := domain.NewProgramEvaluation(program.ID, overall, domainScores, feedback, passed)
	if err != nil {
		return nil, err
	}
	if err := a.repos.Evaluations.Create(ctx, eval); err != nil {
		return nil, err
	}

	if !program.Status.Terminal() {
		_, err = a.repos.Programs.Update(ctx, program.ID, domain.ProgramPatch{
			Revision:     program.Revision,
			Score:        &overall,
			DomainScores: domainScores,
		})
		if err != nil {
			// The evaluation stands; a concurrent writer just got to the
			// row first.
			a.logger.Warn("aggregate not mirrored onto program",
				"program_id", program.ID, "error", err)
		}
	}

	a.logger.Debug("aggregated program",
		"program_id", program.ID,
		"score", overall,
		"evaluated_tasks", len(latest),
		"passed", passed)

	return &Aggregate{
		Evaluation:         eval,
		EvaluatedTaskCount: len(latest),
		TotalTaskCount:     program.TotalTaskCount,
	}, nil
}

func (a *Aggregator) passed(scenario *domain.Scenario, overall, evaluated, total int) bool {
	if threshold, ok := scenario.PassingThreshold(); ok {
		return evaluated > 0 && overall >= threshold
	}
	return total > 0 && evaluated == total
}

// meanScore returns the rounded mean over the given evaluations, or 0
// when none exist.
func meanScore(evals []*domain.Evaluation) int {
	if len(evals) == 0 {
		return 0
	}
	sum := 0
	for _, e := range evals {
		sum += e.Score
	}
	return int(math.Round(float64(sum) / float64(len(evals))))
}

// meanDomainScores averages each domain over the evaluations that report
// it. Domains absent from an evaluation don't drag its mean down.
func meanDomainScores(evals []*domain.Evaluation) map[string]int {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, e := range evals {
		for key, score := range e.DomainScores {
			sums[key] += score
			counts[key]++
		}
	}
	if len(sums) == 0 {
		return nil
	}
	out := make(map[string]int, len(sums))
	for key, sum := range sums {
		out[key] = int(math.Round(float64(sum) / float64(counts[key])))
	}
	return out
}
