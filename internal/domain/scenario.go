package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceRef points at the versioned source document a scenario was
// hydrated from.
type SourceRef struct {
	Type     string            `json:"type"` // e.g. "file", "bank"
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Option is one closed-ended answer choice for a question task.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// RubricCriterion is one weighted criterion for grading open-ended work.
type RubricCriterion struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
	Domain      string  `json:"domain,omitempty"`
}

// TaskTemplate is the immutable definition a Program's tasks are spawned
// from, in template order.
type TaskTemplate struct {
	Index    int               `json:"index"`
	Type     TaskType          `json:"type"`
	Title    string            `json:"title,omitempty"`
	Prompt   string            `json:"prompt"`
	Options  []Option          `json:"options,omitempty"`
	Rubric   []RubricCriterion `json:"rubric,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	MaxScore int               `json:"max_score"`
}

// AssessmentData is the scenario payload for fixed-question assessments.
type AssessmentData struct {
	QuestionBankKey  string `json:"question_bank_key"`
	PassingThreshold int    `json:"passing_threshold"`
	TimeLimitSeconds int    `json:"time_limit_seconds,omitempty"`
	ShuffleQuestions bool   `json:"shuffle_questions,omitempty"`
}

// PBLStage groups a contiguous run of tasks into a named project stage.
type PBLStage struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TaskIndexes []int  `json:"task_indexes"`
}

// PBLData is the scenario payload for multi-stage project work.
type PBLData struct {
	Stages      []PBLStage `json:"stages"`
	Deliverable string     `json:"deliverable,omitempty"`
}

// DiscoveryData is the scenario payload for open-ended career exploration.
type DiscoveryData struct {
	NarrativeKey string   `json:"narrative_key"`
	Domains      []string `json:"domains,omitempty"`
	MaxTasks     int      `json:"max_tasks"`
}

// ScenarioPayload is a tagged union: exactly one arm is non-nil and it must
// match the scenario's mode.
type ScenarioPayload struct {
	Assessment *AssessmentData `json:"assessment,omitempty"`
	PBL        *PBLData        `json:"pbl,omitempty"`
	Discovery  *DiscoveryData  `json:"discovery,omitempty"`
}

// Validate checks the exactly-one-arm invariant against the given mode.
func (p ScenarioPayload) Validate(mode Mode) error {
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
		return fmt.Errorf("%w: scenario payload must have exactly one arm, got %d", ErrValidation, arms)
	}
	switch mode {
	case ModeAssessment:
		if p.Assessment == nil {
			return fmt.Errorf("%w: mode %q requires assessment payload", ErrInvariantViolation, mode)
		}
	case ModePBL:
		if p.PBL == nil {
			return fmt.Errorf("%w: mode %q requires pbl payload", ErrInvariantViolation, mode)
		}
	case ModeDiscovery:
		if p.Discovery == nil {
			return fmt.Errorf("%w: mode %q requires discovery payload", ErrInvariantViolation, mode)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, mode)
	}
	return nil
}

// Scenario is an immutable (per version) definition of a learning unit.
// Mode is set once at creation and never changes.
type Scenario struct {
	ID          string            `json:"id"`
	Mode        Mode              `json:"mode"`
	Status      ScenarioStatus    `json:"status"`
	Version     string            `json:"version"`
	Source      SourceRef         `json:"source"`
	Title       map[string]string `json:"title"`
	Description map[string]string `json:"description,omitempty"`
	Templates   []TaskTemplate    `json:"templates"`
	Payload     ScenarioPayload   `json:"payload"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
}

// NewScenario constructs a draft scenario, enforcing the payload/mode
// invariant at construction time.
func NewScenario(mode Mode, version string, source SourceRef, title map[string]string, templates []TaskTemplate, payload ScenarioPayload) (*Scenario, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrValidation, mode)
	}
	if err := payload.Validate(mode); err != nil {
		return nil, err
	}
	for i, tmpl := range templates {
		if !tmpl.Type.Valid() {
			return nil, fmt.Errorf("%w: template %d has unknown type %q", ErrValidation, i, tmpl.Type)
		}
		if tmpl.Index != i {
			return nil, fmt.Errorf("%w: template %d has index %d, templates must be in order", ErrValidation, i, tmpl.Index)
		}
	}
	now := time.Now()
	return &Scenario{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    ScenarioDraft,
		Version:   version,
		Source:    source,
		Title:     title,
		Templates: templates,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Publish moves a draft scenario to active.
func (s *Scenario) Publish() error {
	if s.Status != ScenarioDraft {
		return fmt.Errorf("%w: cannot publish scenario in status %q", ErrInvariantViolation, s.Status)
	}
	now := time.Now()
	s.Status = ScenarioActive
	s.PublishedAt = &now
	s.UpdatedAt = now
	return nil
}

// Archive retires a scenario. Existing programs keep running against it.
func (s *Scenario) Archive() error {
	if s.Status == ScenarioArchived {
		return fmt.Errorf("%w: scenario already archived", ErrInvariantViolation)
	}
	s.Status = ScenarioArchived
	s.UpdatedAt = time.Now()
	return nil
}

// LocalizedTitle returns the title for lang, falling back to "en" and then
// to any available language.
func (s *Scenario) LocalizedTitle(lang string) string {
	if t, ok := s.Title[lang]; ok {
		return t
	}
	if t, ok := s.Title["en"]; ok {
		return t
	}
	for _, t := range s.Title {
		return t
	}
	return ""
}

// PassingThreshold returns the configured passing threshold and whether one
// exists. Only assessment scenarios carry an explicit threshold.
func (s *Scenario) PassingThreshold() (int, bool) {
	if s.Payload.Assessment != nil {
		return s.Payload.Assessment.PassingThreshold, true
	}
	return 0, false
}
