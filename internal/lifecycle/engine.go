package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/evaluation"
	"github.com/pathwise-learning/pathwise/internal/events"
	"github.com/pathwise-learning/pathwise/internal/oracle"
)

// maxIdleCredit bounds how much wall-clock time between two touches of a
// task is credited to the program. Longer gaps count as walking away.
const maxIdleCredit = 30 * time.Minute

// Engine coordinates the program/task state machines over a storage
// backend, a scoring oracle, and a task factory. Every invariant check
// happens before any state is persisted.
type Engine struct {
	repos      domain.Repositories
	scorer     oracle.Scorer
	aggregator *evaluation.Aggregator
	publisher  events.Publisher
	templates  TemplateFactory
	discovery  *DiscoveryFactory
	logger     *slog.Logger
}

// NewEngine creates an engine. The generator may be nil when discovery
// mode is not served by this deployment.
func NewEngine(repos domain.Repositories, scorer oracle.Scorer, generator oracle.Generator, publisher events.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	e := &Engine{
		repos:      repos,
		scorer:     scorer,
		aggregator: evaluation.NewAggregator(repos, logger),
		publisher:  publisher,
		logger:     logger,
	}
	if generator != nil {
		e.discovery = NewDiscoveryFactory(generator)
	}
	return e
}

// Aggregator exposes the engine's aggregator for read-side callers.
func (e *Engine) Aggregator() *evaluation.Aggregator {
	return e.aggregator
}

// Health reports whether the engine's storage backend answers a cheap
// read.
func (e *Engine) Health(ctx context.Context) error {
	_, err := e.repos.Scenarios.List(ctx, domain.ScenarioFilter{})
	return err
}

func (e *Engine) factoryFor(mode domain.Mode) (TaskFactory, error) {
	if mode == domain.ModeDiscovery {
		if e.discovery == nil {
			return nil, fmt.Errorf("%w: discovery mode not configured", domain.ErrUpstream)
		}
		return e.discovery, nil
	}
	return e.templates, nil
}

// StartProgram creates a program and its initial tasks as one unit.
// Discovery programs start with a single generated task; other modes get
// the scenario's full template list.
func (e *Engine) StartProgram(ctx context.Context, userID, scenarioID string, attempt domain.AttemptType) (*domain.Program, []*domain.Task, error) {
	scenario, err := e.repos.Scenarios.FindByID(ctx, scenarioID)
	if err != nil {
		return nil, nil, err
	}
	if scenario.Status != domain.ScenarioActive {
		return nil, nil, fmt.Errorf("%w: scenario %s is %s, not active",
			domain.ErrInvariantViolation, scenario.ID, scenario.Status)
	}

	program, err := domain.NewProgram(userID, scenario, attempt)
	if err != nil {
		return nil, nil, err
	}
	factory, err := e.factoryFor(program.Mode)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := factory.Initial(ctx, scenario, program)
	if err != nil {
		return nil, nil, err
	}
	if err := e.repos.Programs.CreateWithTasks(ctx, program, tasks); err != nil {
		return nil, nil, err
	}

	e.publish(ctx, events.NewProgramEvent(events.ProgramStarted, program))
	e.logger.Info("program started",
		"program_id", program.ID,
		"scenario_id", scenario.ID,
		"mode", program.Mode,
		"tasks", len(tasks))
	return program, tasks, nil
}

// PauseProgram suspends an active program.
func (e *Engine) PauseProgram(ctx context.Context, programID string) (*domain.Program, error) {
	return e.transition(ctx, programID, domain.ProgramPaused)
}

// ResumeProgram reactivates a paused program.
func (e *Engine) ResumeProgram(ctx context.Context, programID string) (*domain.Program, error) {
	return e.transition(ctx, programID, domain.ProgramActive)
}

// AbandonProgram terminates the program by explicit user action.
func (e *Engine) AbandonProgram(ctx context.Context, programID string) (*domain.Program, error) {
	program, err := e.transition(ctx, programID, domain.ProgramAbandoned)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.NewProgramEvent(events.ProgramAbandoned, program))
	return program, nil
}

func (e *Engine) transition(ctx context.Context, programID string, to domain.ProgramStatus) (*domain.Program, error) {
	program, err := e.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		return nil, err
	}
	return e.repos.Programs.UpdateStatus(ctx, programID, program.Revision, to)
}

// FinishProgram aggregates a final grade and moves the program to
// completed. Finishing early requires at least one completed task.
func (e *Engine) FinishProgram(ctx context.Context, programID string) (*domain.Program, error) {
	program, err := e.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		return nil, err
	}
	if program.CompletedTaskCount == 0 {
		return nil, fmt.Errorf("%w: cannot finish program with no completed tasks",
			domain.ErrInvariantViolation)
	}
	if program.Status.Terminal() {
		return nil, fmt.Errorf("%w: program is %s", domain.ErrConflict, program.Status)
	}

	// Grade while the program row is still writable.
	if _, err := e.aggregator.Aggregate(ctx, programID); err != nil {
		return nil, err
	}
	program, err = e.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	status := domain.ProgramCompleted
	updated, err := e.repos.Programs.Update(ctx, programID, domain.ProgramPatch{
		Revision:    program.Revision,
		Status:      &status,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.NewProgramEvent(events.ProgramCompleted, updated))
	e.logger.Info("program completed",
		"program_id", updated.ID,
		"score", updated.Score,
		"completed_tasks", updated.CompletedTaskCount)
	return updated, nil
}

// Advance moves the program to its next task. When the current task is
// neither completed nor skipped this is an idempotent no-op: the stored
// program comes back unchanged. Discovery programs generate the next task
// here.
func (e *Engine) Advance(ctx context.Context, programID string) (*domain.Program, *domain.Task, error) {
	program, err := e.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := e.repos.Tasks.FindByProgram(ctx, programID)
	if err != nil {
		return nil, nil, err
	}
	current := taskAt(tasks, program.CurrentTaskIndex)
	if current == nil {
		return nil, nil, domain.ErrTaskNotFound
	}

	revision := program.Revision
	moved, err := program.Advance(current)
	if err != nil {
		return nil, nil, err
	}
	if !moved {
		return program, current, nil
	}

	next := taskAt(tasks, program.CurrentTaskIndex)
	patch := domain.ProgramPatch{
		Revision:         revision,
		CurrentTaskIndex: &program.CurrentTaskIndex,
	}
	if next == nil {
		scenario, err := e.repos.Scenarios.FindByID(ctx, program.ScenarioID)
		if err != nil {
			return nil, nil, err
		}
		factory, err := e.factoryFor(program.Mode)
		if err != nil {
			return nil, nil, err
		}
		next, err = factory.Next(ctx, scenario, program, tasks)
		if errors.Is(err, oracle.ErrExhausted) {
			// Nothing left to explore; the learner finishes from here.
			stored, err := e.repos.Programs.FindByID(ctx, programID)
			if err != nil {
				return nil, nil, err
			}
			return stored, current, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if err := e.repos.Tasks.Create(ctx, next); err != nil {
			return nil, nil, err
		}
		patch.Payload = &program.Payload
	}

	updated, err := e.repos.Programs.Update(ctx, programID, patch)
	if err != nil {
		return nil, nil, err
	}
	return updated, next, nil
}

// writableTask loads a task and rejects it with ErrConflict when its
// program is terminal, before any state is touched.
func (e *Engine) writableTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := e.repos.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	program, err := e.repos.Programs.FindByID(ctx, task.ProgramID)
	if err != nil {
		return nil, err
	}
	if program.Status.Terminal() {
		return nil, fmt.Errorf("%w: program is %s", domain.ErrConflict, program.Status)
	}
	return task, nil
}

// RecordInteraction appends an exchange to a task, activating it on the
// first one, and credits elapsed time to the program.
func (e *Engine) RecordInteraction(ctx context.Context, taskID string, actor domain.Actor, content string) (*domain.Task, error) {
	task, err := e.writableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	lastTouched := task.UpdatedAt
	if err := task.RecordInteraction(actor, content); err != nil {
		return nil, err
	}

	updated, err := e.repos.Tasks.Update(ctx, taskID, domain.TaskPatch{
		Status:       &task.Status,
		Interactions: task.Interactions,
	})
	if err != nil {
		return nil, err
	}
	e.creditTime(ctx, task.ProgramID, lastTouched)
	return updated, nil
}

// SubmitTask grades a submission through the oracle. An oracle failure
// surfaces as ErrUpstream and leaves the task exactly as it was: not
// graded, retryable. A passing result completes the task; a failing one
// records the score and leaves the task active.
func (e *Engine) SubmitTask(ctx context.Context, taskID, submission string) (*domain.Task, *oracle.Result, error) {
	task, err := e.writableTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != domain.TaskPending && task.Status != domain.TaskActive {
		return nil, nil, fmt.Errorf("%w: cannot submit task in status %q",
			domain.ErrInvariantViolation, task.Status)
	}
	lastTouched := task.UpdatedAt

	result, err := e.scorer.Score(ctx, task, submission)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvariantViolation) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: scoring task %s: %v", domain.ErrUpstream, taskID, err)
	}

	if err := task.RecordInteraction(domain.ActorUser, submission); err != nil {
		return nil, nil, err
	}
	firstCompletion := false
	if result.Passed {
		if err := task.Complete(result.Score); err != nil {
			return nil, nil, err
		}
		firstCompletion = task.PassCount == 1
	} else {
		if err := task.RecordScore(result.Score); err != nil {
			return nil, nil, err
		}
	}

	updated, err := e.repos.Tasks.Update(ctx, taskID, domain.TaskPatch{
		Status:       &task.Status,
		Interactions: task.Interactions,
		Score:        &task.Score,
		PassCount:    &task.PassCount,
		CompletedAt:  task.CompletedAt,
	})
	if err != nil {
		return nil, nil, err
	}

	eval, err := domain.NewTaskEvaluation(task.ID, result.Score, result.DomainScores, result.Feedback, result.Passed)
	if err != nil {
		return nil, nil, err
	}
	if err := e.repos.Evaluations.Create(ctx, eval); err != nil {
		return nil, nil, err
	}

	program, err := e.repos.Programs.FindByID(ctx, task.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	if firstCompletion {
		completed := program.CompletedTaskCount + 1
		program, err = e.repos.Programs.Update(ctx, program.ID, domain.ProgramPatch{
			Revision:           program.Revision,
			CompletedTaskCount: &completed,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if result.Passed {
		e.publish(ctx, events.NewTaskEvent(events.TaskCompleted, program, updated))
	}
	if _, err := e.aggregator.Aggregate(ctx, program.ID); err != nil {
		// The task grade is recorded; the stale program aggregate stays
		// visible until the next successful recompute.
		e.logger.Warn("aggregate after submission failed",
			"program_id", program.ID, "error", err)
	}
	e.creditTime(ctx, task.ProgramID, lastTouched)

	return updated, result, nil
}

// SkipTask marks a task skipped by explicit user action.
func (e *Engine) SkipTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := e.writableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Skip(); err != nil {
		return nil, err
	}
	return e.repos.Tasks.Update(ctx, taskID, domain.TaskPatch{Status: &task.Status})
}

// ReopenTask re-enters a completed iterative task for a better score.
func (e *Engine) ReopenTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := e.writableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Reopen(); err != nil {
		return nil, err
	}
	return e.repos.Tasks.Update(ctx, taskID, domain.TaskPatch{
		Status:           &task.Status,
		ClearCompletedAt: true,
	})
}

// creditTime adds the elapsed time since the task was last touched to the
// program, capped so idle gaps don't inflate the total. Best effort.
func (e *Engine) creditTime(ctx context.Context, programID string, lastTouched time.Time) {
	elapsed := time.Since(lastTouched)
	if elapsed <= 0 {
		return
	}
	if elapsed > maxIdleCredit {
		elapsed = maxIdleCredit
	}
	program, err := e.repos.Programs.FindByID(ctx, programID)
	if err != nil || program.Status.Terminal() {
		return
	}
	total := program.TimeSpentSeconds + int(elapsed.Seconds())
	if _, err := e.repos.Programs.Update(ctx, programID, domain.ProgramPatch{
		Revision:         program.Revision,
		TimeSpentSeconds: &total,
	}); err != nil {
		e.logger.Debug("time credit not recorded", "program_id", programID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("lifecycle event not published",
			"kind", event.Kind,
			"program_id", event.ProgramID,
			"error", err)
	}
}

func taskAt(tasks []*domain.Task, index int) *domain.Task {
	for _, task := range tasks {
		if task.Index == index {
			return task
		}
	}
	return nil
}
