package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssessmentState is the mutable program payload for assessment mode.
type AssessmentState struct {
	QuestionCodes    []string `json:"question_codes,omitempty"`
	RemainingSeconds int      `json:"remaining_seconds,omitempty"`
}

// PBLState is the mutable program payload for project work.
type PBLState struct {
	CurrentStage int    `json:"current_stage"`
	Notes        string `json:"notes,omitempty"`
}

// DiscoveryState is the mutable program payload for exploration.
type DiscoveryState struct {
	CurrentNode  string   `json:"current_node,omitempty"`
	VisitedNodes []string `json:"visited_nodes,omitempty"`
}

// ProgramPayload mirrors the scenario payload union on the mutable side.
type ProgramPayload struct {
	Assessment *AssessmentState `json:"assessment,omitempty"`
	PBL        *PBLState        `json:"pbl,omitempty"`
	Discovery  *DiscoveryState  `json:"discovery,omitempty"`
}

// Validate checks the exactly-one-arm invariant against the given mode.
func (p ProgramPayload) Validate(mode Mode) error {
	arms := 0
	if p.Assessment != nil {
		arms++
	}
	if p.PBL != nil {
		arms++
	}
	if p.Discovery != nil {
		arms++
	}
	if arms != 1 {
		return fmt.Errorf("%w: program payload must have exactly one arm, got %d", ErrValidation, arms)
	}
	switch mode {
	case ModeAssessment:
		if p.Assessment == nil {
			return fmt.Errorf("%w: mode %q requires assessment state", ErrInvariantViolation, mode)
		}
	case ModePBL:
		if p.PBL == nil {
			return fmt.Errorf("%w: mode %q requires pbl state", ErrInvariantViolation, mode)
		}
	case ModeDiscovery:
		if p.Discovery == nil {
			return fmt.Errorf("%w: mode %q requires discovery state", ErrInvariantViolation, mode)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, mode)
	}
	return nil
}

// Program is one learner's attempt at a scenario. It is the unit of
// optimistic concurrency: Revision increments on every persisted update.
type Program struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	ScenarioID         string         `json:"scenario_id"`
	Mode               Mode           `json:"mode"`
	Status             ProgramStatus  `json:"status"`
	AttemptType        AttemptType    `json:"attempt_type"`
	CurrentTaskIndex   int            `json:"current_task_index"`
	CompletedTaskCount int            `json:"completed_task_count"`
	TotalTaskCount     int            `json:"total_task_count"`
	Score              int            `json:"score"`
	DomainScores       map[string]int `json:"domain_scores,omitempty"`
	TimeSpentSeconds   int            `json:"time_spent_seconds"`
	Payload            ProgramPayload `json:"payload"`
	Revision           int64          `json:"revision"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// NewProgram derives a program from a scenario, copying the scenario's mode
// (the propagation invariant) and its task count.
func NewProgram(userID string, scenario *Scenario, attempt AttemptType) (*Program, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if scenario == nil {
		return nil, fmt.Errorf("%w: scenario is required", ErrValidation)
	}
	if attempt != AttemptPractice && attempt != AttemptFormal {
		return nil, fmt.Errorf("%w: unknown attempt type %q", ErrValidation, attempt)
	}

	total := len(scenario.Templates)
	payload := ProgramPayload{}
	switch scenario.Mode {
	case ModeAssessment:
		state := &AssessmentState{}
		if scenario.Payload.Assessment != nil {
			state.RemainingSeconds = scenario.Payload.Assessment.TimeLimitSeconds
		}
		payload.Assessment = state
	case ModePBL:
		payload.PBL = &PBLState{}
	case ModeDiscovery:
		payload.Discovery = &DiscoveryState{}
		// Discovery tasks are generated one at a time; the scenario's
		// MaxTasks bounds the program, not the template list.
		if scenario.Payload.Discovery != nil && scenario.Payload.Discovery.MaxTasks > 0 {
			total = scenario.Payload.Discovery.MaxTasks
		}
	default:
		return nil, fmt.Errorf("%w: scenario has unknown mode %q", ErrValidation, scenario.Mode)
	}

	now := time.Now()
	return &Program{
		ID:             uuid.New().String(),
		UserID:         userID,
		ScenarioID:     scenario.ID,
		Mode:           scenario.Mode,
		Status:         ProgramActive,
		AttemptType:    attempt,
		TotalTaskCount: total,
		DomainScores:   map[string]int{},
		Payload:        payload,
		Revision:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanTransitionProgram reports whether a program status transition is
// allowed by the lifecycle state machine.
func CanTransitionProgram(from, to ProgramStatus) bool {
	switch from {
	case ProgramActive:
		return to == ProgramPaused || to == ProgramCompleted || to == ProgramAbandoned
	case ProgramPaused:
		return to == ProgramActive || to == ProgramAbandoned
	}
	return false
}

// Pause suspends an active program. Resumable any number of times.
func (p *Program) Pause() error {
	return p.transition(ProgramPaused)
}

// Resume reactivates a paused program.
func (p *Program) Resume() error {
	return p.transition(ProgramActive)
}

// Abandon terminates the program by explicit user action. Terminal soft
// state; the record is never deleted.
func (p *Program) Abandon() error {
	return p.transition(ProgramAbandoned)
}

// Finish moves the program to completed. Early finishing requires at least
// one completed task.
func (p *Program) Finish() error {
	if p.CompletedTaskCount == 0 {
		return fmt.Errorf("%w: cannot finish program with no completed tasks", ErrInvariantViolation)
	}
	if err := p.transition(ProgramCompleted); err != nil {
		return err
	}
	now := time.Now()
	p.CompletedAt = &now
	return nil
}

func (p *Program) transition(to ProgramStatus) error {
	if !CanTransitionProgram(p.Status, to) {
		if p.Status.Terminal() {
			return fmt.Errorf("%w: program is %s", ErrConflict, p.Status)
		}
		return fmt.Errorf("%w: program transition %s -> %s", ErrInvariantViolation, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return nil
}

// RecordTaskCompletion bumps the completed-task counter, keeping the
// completed <= total invariant.
func (p *Program) RecordTaskCompletion() error {
	if p.CompletedTaskCount >= p.TotalTaskCount {
		return fmt.Errorf("%w: completed task count %d already at total %d",
			ErrInvariantViolation, p.CompletedTaskCount, p.TotalTaskCount)
	}
	p.CompletedTaskCount++
	p.UpdatedAt = time.Now()
	return nil
}

// AddTimeSpent accumulates learner time on the program.
func (p *Program) AddTimeSpent(seconds int) {
	if seconds <= 0 {
		return
	}
	p.TimeSpentSeconds += seconds
	p.UpdatedAt = time.Now()
}

// Advance moves the current task index forward when permitted. It returns
// true when the index moved. Advancing past a task that is neither
// completed nor skipped is a no-op, not an error, so the operation stays
// idempotent under retries.
func (p *Program) Advance(current *Task) (bool, error) {
	if p.Status != ProgramActive {
		return false, fmt.Errorf("%w: cannot advance program in status %q", ErrInvariantViolation, p.Status)
	}
	if current == nil || current.Index != p.CurrentTaskIndex {
		return false, fmt.Errorf("%w: advance requires the task at index %d", ErrValidation, p.CurrentTaskIndex)
	}
	if current.Status != TaskCompleted && current.Status != TaskSkipped {
		return false, nil
	}
	if p.CurrentTaskIndex+1 >= p.TotalTaskCount {
		return false, nil
	}
	p.CurrentTaskIndex++
	p.UpdatedAt = time.Now()
	return true, nil
}
