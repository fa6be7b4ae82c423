package events

import (
	"context"
	"testing"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

func TestNewProgramEvent(t *testing.T) {
	program := &domain.Program{
		ID:         "p1",
		UserID:     "u1",
		ScenarioID: "s1",
		Mode:       domain.ModeAssessment,
		Score:      72,
	}

	event := NewProgramEvent(ProgramCompleted, program)
	if event.Kind != ProgramCompleted {
		t.Errorf("Kind = %q; want %q", event.Kind, ProgramCompleted)
	}
	if event.ProgramID != "p1" || event.UserID != "u1" || event.ScenarioID != "s1" {
		t.Errorf("event ids = %q/%q/%q; want p1/u1/s1",
			event.ProgramID, event.UserID, event.ScenarioID)
	}
	if event.Score != 72 {
		t.Errorf("Score = %d; want 72", event.Score)
	}
	if event.ID == "" || event.OccurredAt.IsZero() {
		t.Error("event missing id or timestamp")
	}
}

func TestNewTaskEvent(t *testing.T) {
	program := &domain.Program{ID: "p1", UserID: "u1", Mode: domain.ModePBL}
	task := &domain.Task{ID: "t1", Score: 88}

	event := NewTaskEvent(TaskCompleted, program, task)
	if event.TaskID != "t1" {
		t.Errorf("TaskID = %q; want t1", event.TaskID)
	}
	if event.Score != 88 {
		t.Errorf("Score = %d; want task score 88, not program score", event.Score)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	if err := p.Publish(context.Background(), Event{Kind: ProgramStarted}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
