package domain

import (
	"errors"
	"testing"
)

func testScenario(t *testing.T) *Scenario {
	t.Helper()
	s, err := NewScenario(ModeAssessment, "1.0.0",
		SourceRef{Type: "file", Path: "banks/golang-basics.yaml"},
		map[string]string{"en": "Go Basics"},
		twoQuestionTemplates(), assessmentPayload(60))
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	return s
}

func testProgram(t *testing.T) *Program {
	t.Helper()
	p, err := NewProgram("user-1", testScenario(t), AttemptFormal)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	return p
}

func TestNewProgram_PropagatesMode(t *testing.T) {
	s := testScenario(t)
	p, err := NewProgram("user-1", s, AttemptPractice)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	if p.Mode != s.Mode {
		t.Errorf("Mode = %q; want scenario mode %q", p.Mode, s.Mode)
	}
	if p.Status != ProgramActive {
		t.Errorf("Status = %q; want %q", p.Status, ProgramActive)
	}
	if p.TotalTaskCount != 2 {
		t.Errorf("TotalTaskCount = %d; want 2", p.TotalTaskCount)
	}
	if p.Payload.Assessment == nil {
		t.Error("assessment program should carry assessment state")
	}
	if p.Revision != 1 {
		t.Errorf("Revision = %d; want 1", p.Revision)
	}
}

func TestNewProgram_DiscoveryUsesMaxTasks(t *testing.T) {
	s, err := NewScenario(ModeDiscovery, "1.0.0", SourceRef{}, nil, nil,
		ScenarioPayload{Discovery: &DiscoveryData{NarrativeKey: "trees/careers", MaxTasks: 7}})
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	p, err := NewProgram("user-1", s, AttemptPractice)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	if p.TotalTaskCount != 7 {
		t.Errorf("TotalTaskCount = %d; want 7", p.TotalTaskCount)
	}
}

func TestNewProgram_Validation(t *testing.T) {
	s := testScenario(t)
	if _, err := NewProgram("", s, AttemptFormal); !errors.Is(err, ErrValidation) {
		t.Errorf("empty user error = %v; want ErrValidation", err)
	}
	if _, err := NewProgram("user-1", s, AttemptType("exam")); !errors.Is(err, ErrValidation) {
		t.Errorf("bad attempt type error = %v; want ErrValidation", err)
	}
}

func TestProgram_PauseResume(t *testing.T) {
	p := testProgram(t)

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if p.Status != ProgramPaused {
		t.Errorf("Status = %q; want %q", p.Status, ProgramPaused)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if p.Status != ProgramActive {
		t.Errorf("Status = %q; want %q", p.Status, ProgramActive)
	}
	// Resumable any number of times.
	if err := p.Pause(); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("second Resume() error = %v", err)
	}
}

func TestProgram_TerminalStates(t *testing.T) {
	p := testProgram(t)
	if err := p.Abandon(); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if err := p.Resume(); !errors.Is(err, ErrConflict) {
		t.Errorf("Resume() after abandon error = %v; want ErrConflict", err)
	}
	if err := p.Pause(); !errors.Is(err, ErrConflict) {
		t.Errorf("Pause() after abandon error = %v; want ErrConflict", err)
	}
}

func TestProgram_FinishRequiresCompletedTask(t *testing.T) {
	p := testProgram(t)
	if err := p.Finish(); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Finish() with no completed tasks error = %v; want ErrInvariantViolation", err)
	}

	if err := p.RecordTaskCompletion(); err != nil {
		t.Fatalf("RecordTaskCompletion() error = %v", err)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if p.Status != ProgramCompleted {
		t.Errorf("Status = %q; want %q", p.Status, ProgramCompleted)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestProgram_CompletedCountBoundedByTotal(t *testing.T) {
	p := testProgram(t)
	if err := p.RecordTaskCompletion(); err != nil {
		t.Fatalf("RecordTaskCompletion() error = %v", err)
	}
	if err := p.RecordTaskCompletion(); err != nil {
		t.Fatalf("RecordTaskCompletion() error = %v", err)
	}
	if err := p.RecordTaskCompletion(); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("third RecordTaskCompletion() error = %v; want ErrInvariantViolation", err)
	}
}

func TestProgram_AdvanceIdempotentOnUnfinishedTask(t *testing.T) {
	p := testProgram(t)
	task, err := NewTask(p, TaskTemplate{Index: 0, Type: TaskQuestion, Prompt: "q1"})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	moved, err := p.Advance(task)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if moved {
		t.Error("Advance() over a pending task should be a no-op")
	}
	if p.CurrentTaskIndex != 0 {
		t.Errorf("CurrentTaskIndex = %d; want 0", p.CurrentTaskIndex)
	}

	if err := task.RecordInteraction(ActorUser, "a"); err != nil {
		t.Fatalf("RecordInteraction() error = %v", err)
	}
	if err := task.Complete(90); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	moved, err = p.Advance(task)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !moved || p.CurrentTaskIndex != 1 {
		t.Errorf("Advance() moved=%v index=%d; want true, 1", moved, p.CurrentTaskIndex)
	}
}

func TestProgram_AdvanceStopsAtLastTask(t *testing.T) {
	p := testProgram(t)
	p.CurrentTaskIndex = 1
	task, _ := NewTask(p, TaskTemplate{Index: 1, Type: TaskQuestion, Prompt: "q2"})
	_ = task.RecordInteraction(ActorUser, "a")
	_ = task.Complete(80)

	moved, err := p.Advance(task)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if moved {
		t.Error("Advance() at the last index should not move")
	}
}

func TestProgramPatch_RevisionAndTerminalGuards(t *testing.T) {
	p := testProgram(t)
	score := 70
	if err := (ProgramPatch{Score: &score}).Apply(p); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if p.Revision != 2 {
		t.Errorf("Revision = %d; want 2", p.Revision)
	}

	_ = p.RecordTaskCompletion()
	_ = p.Finish()
	if err := (ProgramPatch{Score: &score}).Apply(p); !errors.Is(err, ErrConflict) {
		t.Errorf("Apply() on completed program error = %v; want ErrConflict", err)
	}
}

func TestProgramPatch_ModeImmutable(t *testing.T) {
	p := testProgram(t)
	mode := ModePBL
	if err := (ProgramPatch{Mode: &mode}).Apply(p); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Apply() mode change error = %v; want ErrInvariantViolation", err)
	}
}
