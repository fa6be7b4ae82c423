package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interaction is one recorded exchange within a task. Interactions are
// append-only and ordered by arrival.
type Interaction struct {
	Actor     Actor     `json:"actor"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskContent carries the prompt and, depending on the task type, either
// closed-ended options or an open-ended rubric.
type TaskContent struct {
	Title        string            `json:"title,omitempty"`
	Prompt       string            `json:"prompt"`
	Instructions string            `json:"instructions,omitempty"`
	Options      []Option          `json:"options,omitempty"`
	Rubric       []RubricCriterion `json:"rubric,omitempty"`
	Domain       string            `json:"domain,omitempty"`
}

// Task is one unit of work inside a program. Its mode is copied from the
// parent program at creation and never diverges.
type Task struct {
	ID           string        `json:"id"`
	ProgramID    string        `json:"program_id"`
	Mode         Mode          `json:"mode"`
	Index        int           `json:"index"`
	Type         TaskType      `json:"type"`
	Status       TaskStatus    `json:"status"`
	Content      TaskContent   `json:"content"`
	Interactions []Interaction `json:"interactions,omitempty"`
	Score        int           `json:"score"`
	MaxScore     int           `json:"max_score"`
	PassCount    int           `json:"pass_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// NewTask spawns a task under a program from a template, propagating the
// program's mode.
func NewTask(program *Program, tmpl TaskTemplate) (*Task, error) {
	if program == nil {
		return nil, fmt.Errorf("%w: program is required", ErrValidation)
	}
	if !tmpl.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrValidation, tmpl.Type)
	}
	if tmpl.Index < 0 || tmpl.Index >= program.TotalTaskCount {
		return nil, fmt.Errorf("%w: template index %d out of range [0,%d)",
			ErrValidation, tmpl.Index, program.TotalTaskCount)
	}
	maxScore := tmpl.MaxScore
	if maxScore == 0 {
		maxScore = 100
	}
	now := time.Now()
	return &Task{
		ID:        uuid.New().String(),
		ProgramID: program.ID,
		Mode:      program.Mode,
		Index:     tmpl.Index,
		Type:      tmpl.Type,
		Status:    TaskPending,
		Content: TaskContent{
			Title:   tmpl.Title,
			Prompt:  tmpl.Prompt,
			Options: tmpl.Options,
			Rubric:  tmpl.Rubric,
			Domain:  tmpl.Domain,
		},
		MaxScore:  maxScore,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RecordInteraction appends an exchange. The first interaction moves a
// pending task to active.
func (t *Task) RecordInteraction(actor Actor, content string) error {
	if t.Status == TaskSkipped {
		return fmt.Errorf("%w: cannot interact with a skipped task", ErrInvariantViolation)
	}
	if actor != ActorUser && actor != ActorSystem {
		return fmt.Errorf("%w: unknown actor %q", ErrValidation, actor)
	}
	now := time.Now()
	t.Interactions = append(t.Interactions, Interaction{
		Actor:     actor,
		Content:   content,
		Timestamp: now,
	})
	if t.Status == TaskPending {
		t.Status = TaskActive
	}
	t.UpdatedAt = now
	return nil
}

// Complete marks the task completed with the given score. A passing
// evaluation must exist before the lifecycle engine calls this.
func (t *Task) Complete(score int) error {
	if t.Status != TaskActive {
		return fmt.Errorf("%w: task transition %s -> %s", ErrInvariantViolation, t.Status, TaskCompleted)
	}
	now := time.Now()
	t.Status = TaskCompleted
	t.Score = score
	t.PassCount++
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// RecordScore updates the task's score without completing it, used when an
// evaluation exists but did not pass.
func (t *Task) RecordScore(score int) error {
	if t.Status != TaskActive {
		return fmt.Errorf("%w: cannot score task in status %q", ErrInvariantViolation, t.Status)
	}
	t.Score = score
	t.UpdatedAt = time.Now()
	return nil
}

// Skip marks the task skipped by explicit user action. No passing
// evaluation is required.
func (t *Task) Skip() error {
	if t.Status != TaskPending && t.Status != TaskActive {
		return fmt.Errorf("%w: task transition %s -> %s", ErrInvariantViolation, t.Status, TaskSkipped)
	}
	t.Status = TaskSkipped
	t.UpdatedAt = time.Now()
	return nil
}

// Reopen re-enters a completed task for another attempt at a higher score.
// Only iterative task types support re-entry; PassCount records how many
// times the task has passed across attempts.
func (t *Task) Reopen() error {
	if t.Status != TaskCompleted {
		return fmt.Errorf("%w: only completed tasks can be reopened", ErrInvariantViolation)
	}
	if !t.Type.Iterative() {
		return fmt.Errorf("%w: task type %q does not support re-entry", ErrInvariantViolation, t.Type)
	}
	t.Status = TaskActive
	t.CompletedAt = nil
	t.UpdatedAt = time.Now()
	return nil
}
