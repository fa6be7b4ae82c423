package domain

import (
	"context"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Repository contracts
// One interface per entity. Both storage backends (relational and object)
// implement these with identical observable behavior; the mode-propagation
// invariant is checked inside the repositories, not only by callers.
// -----------------------------------------------------------------------------

// ScenarioFilter narrows scenario listings.
type ScenarioFilter struct {
	Mode   *Mode
	Status *ScenarioStatus
}

// ProgramFilter narrows a user's program listing.
type ProgramFilter struct {
	Status      *ProgramStatus
	Mode        *Mode
	ScenarioID  string
	AttemptType *AttemptType
}

// ScenarioRepository stores immutable scenario definitions.
type ScenarioRepository interface {
	FindByID(ctx context.Context, id string) (*Scenario, error)
	List(ctx context.Context, filter ScenarioFilter) ([]*Scenario, error)
	Create(ctx context.Context, scenario *Scenario) error
	// Update applies a partial update. Mode changes are rejected with
	// ErrInvariantViolation.
	Update(ctx context.Context, id string, patch ScenarioPatch) (*Scenario, error)
}

// ProgramRepository stores learner programs.
type ProgramRepository interface {
	FindByID(ctx context.Context, id string) (*Program, error)
	// FindByUser returns the user's programs, newest first.
	FindByUser(ctx context.Context, userID string, filter ProgramFilter) ([]*Program, error)
	// Create rejects drafts whose mode does not match the referenced
	// scenario's mode.
	Create(ctx context.Context, program *Program) error
	// CreateWithTasks persists a program and its initial tasks as one
	// atomic unit.
	CreateWithTasks(ctx context.Context, program *Program, tasks []*Task) error
	// Update applies a partial update guarded by optimistic concurrency:
	// patch.Revision must equal the stored revision or ErrConflict is
	// returned. Updates to terminal programs return ErrConflict. Mode
	// changes return ErrInvariantViolation.
	Update(ctx context.Context, id string, patch ProgramPatch) (*Program, error)
	// UpdateStatus wraps Update with lifecycle transition validation.
	UpdateStatus(ctx context.Context, id string, revision int64, status ProgramStatus) (*Program, error)
}

// TaskRepository stores tasks under programs.
type TaskRepository interface {
	FindByID(ctx context.Context, id string) (*Task, error)
	// FindByProgram returns the program's tasks ordered by index.
	FindByProgram(ctx context.Context, programID string) ([]*Task, error)
	// Create rejects drafts whose mode does not match the parent
	// program's mode.
	Create(ctx context.Context, task *Task) error
	// Update applies a partial update; mode changes are rejected.
	Update(ctx context.Context, id string, patch TaskPatch) (*Task, error)
}

// EvaluationRepository stores graded outcomes. Evaluations are append-only.
type EvaluationRepository interface {
	FindByID(ctx context.Context, id string) (*Evaluation, error)
	// FindByTarget returns evaluations of one type for a target, oldest
	// first.
	FindByTarget(ctx context.Context, typ EvaluationType, targetID string) ([]*Evaluation, error)
	// Latest returns the most recent evaluation for a target, or
	// ErrEvaluationNotFound.
	Latest(ctx context.Context, typ EvaluationType, targetID string) (*Evaluation, error)
	Create(ctx context.Context, eval *Evaluation) error
}

// Repositories bundles the four entity repositories a backend provides.
type Repositories struct {
	Scenarios   ScenarioRepository
	Programs    ProgramRepository
	Tasks       TaskRepository
	Evaluations EvaluationRepository
}

// -----------------------------------------------------------------------------
// Partial updates
// Patches carry pointer fields; nil means "leave unchanged". Apply
// functions centralize invariant checks so both backends behave
// identically.
// -----------------------------------------------------------------------------

// ScenarioPatch is a partial scenario update.
type ScenarioPatch struct {
	Mode        *Mode // present only to be rejected
	Status      *ScenarioStatus
	Version     *string
	Title       map[string]string
	Description map[string]string
	PublishedAt *time.Time
}

// Apply mutates s in place after validating the patch.
func (p ScenarioPatch) Apply(s *Scenario) error {
	if p.Mode != nil && *p.Mode != s.Mode {
		return fmt.Errorf("%w: scenario mode is immutable", ErrInvariantViolation)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Version != nil {
		s.Version = *p.Version
	}
	if p.Title != nil {
		s.Title = p.Title
	}
	if p.Description != nil {
		s.Description = p.Description
	}
	if p.PublishedAt != nil {
		s.PublishedAt = p.PublishedAt
	}
	s.UpdatedAt = time.Now()
	return nil
}

// ProgramPatch is a partial program update. Revision is the expected
// stored revision for optimistic concurrency.
type ProgramPatch struct {
	Revision           int64
	Mode               *Mode // present only to be rejected
	Status             *ProgramStatus
	CurrentTaskIndex   *int
	CompletedTaskCount *int
	Score              *int
	DomainScores       map[string]int
	TimeSpentSeconds   *int
	Payload            *ProgramPayload
	CompletedAt        *time.Time
}

// Apply mutates prog in place after validating the patch against the
// stored state. Callers must have already verified the revision.
func (p ProgramPatch) Apply(prog *Program) error {
	if p.Mode != nil && *p.Mode != prog.Mode {
		return fmt.Errorf("%w: program mode is immutable", ErrInvariantViolation)
	}
	if prog.Status.Terminal() {
		return fmt.Errorf("%w: program is %s", ErrConflict, prog.Status)
	}
	if p.Status != nil && *p.Status != prog.Status {
		if !CanTransitionProgram(prog.Status, *p.Status) {
			return fmt.Errorf("%w: program transition %s -> %s", ErrInvariantViolation, prog.Status, *p.Status)
		}
		prog.Status = *p.Status
	}
	if p.CompletedTaskCount != nil {
		if *p.CompletedTaskCount > prog.TotalTaskCount {
			return fmt.Errorf("%w: completed task count %d exceeds total %d",
				ErrInvariantViolation, *p.CompletedTaskCount, prog.TotalTaskCount)
		}
		prog.CompletedTaskCount = *p.CompletedTaskCount
	}
	if p.CurrentTaskIndex != nil {
		if *p.CurrentTaskIndex < 0 || (*p.CurrentTaskIndex >= prog.TotalTaskCount && prog.Status != ProgramCompleted) {
			return fmt.Errorf("%w: task index %d out of range [0,%d)",
				ErrInvariantViolation, *p.CurrentTaskIndex, prog.TotalTaskCount)
		}
		prog.CurrentTaskIndex = *p.CurrentTaskIndex
	}
	if p.Score != nil {
		prog.Score = *p.Score
	}
	if p.DomainScores != nil {
		prog.DomainScores = p.DomainScores
	}
	if p.TimeSpentSeconds != nil {
		prog.TimeSpentSeconds = *p.TimeSpentSeconds
	}
	if p.Payload != nil {
		if err := p.Payload.Validate(prog.Mode); err != nil {
			return err
		}
		prog.Payload = *p.Payload
	}
	if p.CompletedAt != nil {
		prog.CompletedAt = p.CompletedAt
	}
	prog.Revision++
	prog.UpdatedAt = time.Now()
	return nil
}

// TaskPatch is a partial task update.
type TaskPatch struct {
	Mode             *Mode // present only to be rejected
	Status           *TaskStatus
	Interactions     []Interaction // full replacement; appends only
	Score            *int
	PassCount        *int
	CompletedAt      *time.Time
	ClearCompletedAt bool
}

// Apply mutates t in place after validating the patch.
func (p TaskPatch) Apply(t *Task) error {
	if p.Mode != nil && *p.Mode != t.Mode {
		return fmt.Errorf("%w: task mode is immutable", ErrInvariantViolation)
	}
	if p.Interactions != nil {
		if len(p.Interactions) < len(t.Interactions) {
			return fmt.Errorf("%w: interactions are append-only", ErrInvariantViolation)
		}
		for i, existing := range t.Interactions {
			in := p.Interactions[i]
			if in.Actor != existing.Actor || in.Content != existing.Content || !in.Timestamp.Equal(existing.Timestamp) {
				return fmt.Errorf("%w: interactions are append-only", ErrInvariantViolation)
			}
		}
		t.Interactions = p.Interactions
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Score != nil {
		t.Score = *p.Score
	}
	if p.PassCount != nil {
		t.PassCount = *p.PassCount
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	} else if p.ClearCompletedAt {
		t.CompletedAt = nil
	}
	t.UpdatedAt = time.Now()
	return nil
}

// ValidateProgramDraft enforces creation-time invariants against the
// parent scenario. Repositories call this before persisting.
func ValidateProgramDraft(program *Program, scenario *Scenario) error {
	if program.Mode != scenario.Mode {
		return fmt.Errorf("%w: program mode %q does not match scenario mode %q",
			ErrInvariantViolation, program.Mode, scenario.Mode)
	}
	if err := program.Payload.Validate(program.Mode); err != nil {
		return err
	}
	if program.CompletedTaskCount > program.TotalTaskCount {
		return fmt.Errorf("%w: completed task count %d exceeds total %d",
			ErrInvariantViolation, program.CompletedTaskCount, program.TotalTaskCount)
	}
	return nil
}

// ValidateTaskDraft enforces creation-time invariants against the parent
// program. Repositories call this before persisting.
func ValidateTaskDraft(task *Task, program *Program) error {
	if task.Mode != program.Mode {
		return fmt.Errorf("%w: task mode %q does not match program mode %q",
			ErrInvariantViolation, task.Mode, program.Mode)
	}
	if !task.Type.Valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrValidation, task.Type)
	}
	if task.Index < 0 || task.Index >= program.TotalTaskCount {
		return fmt.Errorf("%w: task index %d out of range [0,%d)",
			ErrInvariantViolation, task.Index, program.TotalTaskCount)
	}
	return nil
}
