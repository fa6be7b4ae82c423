package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{provider: "claude", wantName: "claude"},
		{provider: "openai", wantName: "openai"},
		{provider: "ollama", wantName: "ollama"},
		{provider: "gemini", wantErr: true},
		{provider: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := New(Config{Provider: tt.provider})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%q) expected error, got nil", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q): %v", tt.provider, err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestClaudeComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System == "" {
			t.Error("system prompt not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": `{"score": 85}`}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 120, "output_tokens": 15},
		})
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := p.Complete(context.Background(), &Request{
		System: "You grade submissions.",
		Prompt: "grade this",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"score": 85}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestClaudeCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := p.Complete(context.Background(), &Request{Prompt: "grade this"}); err == nil {
		t.Fatal("expected error on 429 response")
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": "graded"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 10},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := p.Complete(context.Background(), &Request{Prompt: "grade this"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "graded" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := p.Complete(context.Background(), &Request{Prompt: "grade this"}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": "graded"},
			"done":              true,
			"eval_count":        12,
			"prompt_eval_count": 90,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})
	resp, err := p.Complete(context.Background(), &Request{Prompt: "grade this"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "graded" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.OutputTokens != 12 {
		t.Errorf("OutputTokens = %d", resp.Usage.OutputTokens)
	}
}
