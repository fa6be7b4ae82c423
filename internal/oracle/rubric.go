package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/llm"
)

// RubricScorer grades open-ended submissions by asking a chat-completion
// model to judge them against the task's rubric. The model answers with a
// JSON verdict; anything unparseable is reported as a scorer failure so
// the caller can retry.
type RubricScorer struct {
	provider llm.Provider
}

// NewRubricScorer wraps an llm provider as an open-ended scorer.
func NewRubricScorer(provider llm.Provider) *RubricScorer {
	return &RubricScorer{provider: provider}
}

func (s *RubricScorer) Name() string {
	return "rubric/" + s.provider.Name()
}

const rubricSystemPrompt = `You are a strict grader for a learning platform.
Judge the learner's submission against the task prompt and rubric.
Respond with a single JSON object and nothing else:
{"score": <0-100 integer>, "domain_scores": {"<domain>": <0-100>}, "passed": <bool>, "strengths": [...], "improvements": [...], "summary": "..."}`

type rubricVerdict struct {
	Score        int            `json:"score"`
	DomainScores map[string]int `json:"domain_scores"`
	Passed       bool           `json:"passed"`
	Strengths    []string       `json:"strengths"`
	Improvements []string       `json:"improvements"`
	Summary      string         `json:"summary"`
}

func (s *RubricScorer) Score(ctx context.Context, task *domain.Task, submission string) (*Result, error) {
	if task.Type == domain.TaskQuestion {
		return nil, fmt.Errorf("%w: closed-ended task %s needs an answer key, not a rubric", domain.ErrValidation, task.ID)
	}
	if strings.TrimSpace(submission) == "" {
		return nil, fmt.Errorf("%w: empty submission", domain.ErrValidation)
	}

	resp, err := s.provider.Complete(ctx, &llm.Request{
		System:    rubricSystemPrompt,
		Prompt:    s.buildPrompt(task, submission),
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("grade submission: %w", err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	score := verdict.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Result{
		Score:        score,
		DomainScores: verdict.DomainScores,
		Passed:       verdict.Passed,
		Feedback: domain.Feedback{
			Strengths:    verdict.Strengths,
			Improvements: verdict.Improvements,
			Summary:      verdict.Summary,
		},
	}, nil
}

func (s *RubricScorer) buildPrompt(task *domain.Task, submission string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task (%s): %s\n", task.Type, task.Content.Prompt)
	if task.Content.Instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", task.Content.Instructions)
	}

	if len(task.Content.Rubric) > 0 {
		b.WriteString("\nRubric:\n")
		for _, c := range task.Content.Rubric {
			fmt.Fprintf(&b, "- %s (weight %.2f", c.Name, c.Weight)
			if c.Domain != "" {
				fmt.Fprintf(&b, ", domain %s", c.Domain)
			}
			b.WriteString(")")
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(task.Interactions) > 0 {
		b.WriteString("\nTranscript:\n")
		for _, in := range task.Interactions {
			fmt.Fprintf(&b, "[%s] %s\n", in.Actor, in.Content)
		}
	}

	fmt.Fprintf(&b, "\nSubmission:\n%s\n", submission)
	return b.String()
}

// parseVerdict tolerates a model wrapping its JSON in a markdown fence.
func parseVerdict(content string) (*rubricVerdict, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}

	var v rubricVerdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("not a JSON verdict: %w", err)
	}
	return &v, nil
}

// TypeRouter sends closed-ended questions to a deterministic scorer and
// everything else to an open-ended one. A nil open scorer makes open-ended
// grading unavailable rather than misconfigured.
type TypeRouter struct {
	closed Scorer
	open   Scorer
}

// NewTypeRouter builds a router over the two scorer families.
func NewTypeRouter(closed, open Scorer) *TypeRouter {
	return &TypeRouter{closed: closed, open: open}
}

func (r *TypeRouter) Name() string {
	return "router"
}

func (r *TypeRouter) Score(ctx context.Context, task *domain.Task, submission string) (*Result, error) {
	if task.Type == domain.TaskQuestion {
		return r.closed.Score(ctx, task, submission)
	}
	if r.open == nil {
		return nil, fmt.Errorf("no open-ended scorer configured for %s task %s", task.Type, task.ID)
	}
	return r.open.Score(ctx, task, submission)
}
