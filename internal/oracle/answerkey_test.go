package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

func questionTask(options []domain.Option) *domain.Task {
	return &domain.Task{
		ID:     "task-1",
		Mode:   domain.ModeAssessment,
		Type:   domain.TaskQuestion,
		Status: domain.TaskActive,
		Content: domain.TaskContent{
			Prompt:  "Pick the correct answers",
			Options: options,
			Domain:  "logic",
		},
		MaxScore: 100,
	}
}

func TestAnswerKeyScorer_SingleCorrect(t *testing.T) {
	scorer := NewAnswerKeyScorer()
	task := questionTask([]domain.Option{
		{ID: "a", Text: "right", Correct: true},
		{ID: "b", Text: "wrong"},
	})

	result, err := scorer.Score(context.Background(), task, "a")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 100 {
		t.Errorf("Score = %d; want 100", result.Score)
	}
	if !result.Passed {
		t.Error("Passed = false; want true")
	}
	if result.DomainScores["logic"] != 100 {
		t.Errorf("DomainScores[logic] = %d; want 100", result.DomainScores["logic"])
	}
}

func TestAnswerKeyScorer_WrongAnswer(t *testing.T) {
	scorer := NewAnswerKeyScorer()
	task := questionTask([]domain.Option{
		{ID: "a", Text: "right", Correct: true},
		{ID: "b", Text: "wrong"},
	})

	result, err := scorer.Score(context.Background(), task, "b")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 0 {
		t.Errorf("Score = %d; want 0", result.Score)
	}
	if result.Passed {
		t.Error("Passed = true; want false")
	}
}

func TestAnswerKeyScorer_PartialCredit(t *testing.T) {
	scorer := NewAnswerKeyScorer()
	task := questionTask([]domain.Option{
		{ID: "a", Correct: true},
		{ID: "b", Correct: true},
		{ID: "c"},
	})

	// One of two correct options selected, no wrong picks.
	result, err := scorer.Score(context.Background(), task, "a")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 50 {
		t.Errorf("Score = %d; want 50", result.Score)
	}
	if result.Passed {
		t.Error("Passed = true; want false for partial credit")
	}

	// A wrong pick cancels a hit.
	result, err = scorer.Score(context.Background(), task, "a, c")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 0 {
		t.Errorf("Score with wrong pick = %d; want 0", result.Score)
	}
}

func TestAnswerKeyScorer_Deterministic(t *testing.T) {
	scorer := NewAnswerKeyScorer()
	task := questionTask([]domain.Option{
		{ID: "a", Correct: true},
		{ID: "b", Correct: true},
		{ID: "c"},
	})

	first, err := scorer.Score(context.Background(), task, "a,b")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := scorer.Score(context.Background(), task, "a,b")
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if again.Score != first.Score || again.Passed != first.Passed {
			t.Fatalf("Score() run %d = (%d, %t); want (%d, %t)",
				i, again.Score, again.Passed, first.Score, first.Passed)
		}
	}
}

func TestAnswerKeyScorer_Rejections(t *testing.T) {
	scorer := NewAnswerKeyScorer()
	ctx := context.Background()

	task := questionTask([]domain.Option{{ID: "a", Correct: true}})
	if _, err := scorer.Score(ctx, task, "z"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Score(unknown option) error = %v; want ErrValidation", err)
	}
	if _, err := scorer.Score(ctx, task, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Score(empty submission) error = %v; want ErrValidation", err)
	}

	chat := questionTask(nil)
	chat.Type = domain.TaskChat
	if _, err := scorer.Score(ctx, chat, "a"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Score(chat task) error = %v; want ErrValidation", err)
	}
}
