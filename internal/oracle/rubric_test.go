package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/llm"
)

type stubProvider struct {
	content string
	err     error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.content}, nil
}

func chatTask() *domain.Task {
	return &domain.Task{
		ID:     "task-2",
		Mode:   domain.ModePBL,
		Type:   domain.TaskChat,
		Status: domain.TaskActive,
		Content: domain.TaskContent{
			Prompt: "Explain your design",
			Rubric: []domain.RubricCriterion{
				{ID: "clarity", Name: "Clarity", Weight: 0.5, Domain: "communication"},
				{ID: "depth", Name: "Depth", Weight: 0.5, Domain: "reasoning"},
			},
		},
		MaxScore: 100,
	}
}

func TestRubricScorer_ParsesVerdict(t *testing.T) {
	provider := &stubProvider{content: `{"score": 72, "domain_scores": {"communication": 80, "reasoning": 64}, "passed": true, "strengths": ["clear"], "improvements": ["go deeper"], "summary": "solid"}`}
	scorer := NewRubricScorer(provider)

	result, err := scorer.Score(context.Background(), chatTask(), "my design explanation")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 72 {
		t.Errorf("Score = %d; want 72", result.Score)
	}
	if !result.Passed {
		t.Error("Passed = false; want true")
	}
	if result.DomainScores["reasoning"] != 64 {
		t.Errorf("DomainScores[reasoning] = %d; want 64", result.DomainScores["reasoning"])
	}
	if result.Feedback.Summary != "solid" {
		t.Errorf("Summary = %q", result.Feedback.Summary)
	}
}

func TestRubricScorer_FencedVerdict(t *testing.T) {
	provider := &stubProvider{content: "```json\n{\"score\": 50, \"passed\": false}\n```"}
	scorer := NewRubricScorer(provider)

	result, err := scorer.Score(context.Background(), chatTask(), "half an answer")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 50 {
		t.Errorf("Score = %d; want 50", result.Score)
	}
}

func TestRubricScorer_ClampsScore(t *testing.T) {
	provider := &stubProvider{content: `{"score": 140, "passed": true}`}
	scorer := NewRubricScorer(provider)

	result, err := scorer.Score(context.Background(), chatTask(), "answer")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Score != 100 {
		t.Errorf("Score = %d; want clamped 100", result.Score)
	}
}

func TestRubricScorer_RejectsQuestionTask(t *testing.T) {
	scorer := NewRubricScorer(&stubProvider{})
	task := questionTask([]domain.Option{{ID: "a", Correct: true}})

	_, err := scorer.Score(context.Background(), task, "a")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v; want ErrValidation", err)
	}
}

func TestRubricScorer_RejectsEmptySubmission(t *testing.T) {
	scorer := NewRubricScorer(&stubProvider{})

	_, err := scorer.Score(context.Background(), chatTask(), "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v; want ErrValidation", err)
	}
}

func TestRubricScorer_ProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	scorer := NewRubricScorer(provider)

	if _, err := scorer.Score(context.Background(), chatTask(), "answer"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestRubricScorer_GarbledVerdict(t *testing.T) {
	provider := &stubProvider{content: "I would give this a B+"}
	scorer := NewRubricScorer(provider)

	if _, err := scorer.Score(context.Background(), chatTask(), "answer"); err == nil {
		t.Fatal("expected error on non-JSON verdict")
	}
}

func TestTypeRouter(t *testing.T) {
	closed := NewAnswerKeyScorer()
	open := NewRubricScorer(&stubProvider{content: `{"score": 90, "passed": true}`})
	router := NewTypeRouter(closed, open)

	question := questionTask([]domain.Option{{ID: "a", Correct: true}, {ID: "b"}})
	result, err := router.Score(context.Background(), question, "a")
	if err != nil {
		t.Fatalf("Score(question) error = %v", err)
	}
	if result.Score != 100 {
		t.Errorf("question Score = %d; want 100 from answer key", result.Score)
	}

	result, err = router.Score(context.Background(), chatTask(), "my answer")
	if err != nil {
		t.Fatalf("Score(chat) error = %v", err)
	}
	if result.Score != 90 {
		t.Errorf("chat Score = %d; want 90 from rubric", result.Score)
	}
}

func TestTypeRouter_NoOpenScorer(t *testing.T) {
	router := NewTypeRouter(NewAnswerKeyScorer(), nil)

	if _, err := router.Score(context.Background(), chatTask(), "answer"); err == nil {
		t.Fatal("expected error when open-ended scorer is missing")
	}
}
