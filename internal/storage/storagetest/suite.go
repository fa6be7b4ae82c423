// Package storagetest runs one behavioral suite against every storage
// backend so the relational and object implementations stay
// interchangeable.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Factory opens a fresh, empty backend for one test.
type Factory func(t *testing.T) domain.Repositories

// Run exercises the repository contract against the backend produced by
// open.
func Run(t *testing.T, open Factory) {
	t.Run("ScenarioRoundTrip", func(t *testing.T) { testScenarioRoundTrip(t, open(t)) })
	t.Run("ScenarioNotFound", func(t *testing.T) { testScenarioNotFound(t, open(t)) })
	t.Run("ScenarioList", func(t *testing.T) { testScenarioList(t, open(t)) })
	t.Run("ScenarioModeImmutable", func(t *testing.T) { testScenarioModeImmutable(t, open(t)) })
	t.Run("ProgramModeMismatch", func(t *testing.T) { testProgramModeMismatch(t, open(t)) })
	t.Run("ProgramRevisionConflict", func(t *testing.T) { testProgramRevisionConflict(t, open(t)) })
	t.Run("ProgramTerminalImmutable", func(t *testing.T) { testProgramTerminalImmutable(t, open(t)) })
	t.Run("CreateWithTasks", func(t *testing.T) { testCreateWithTasks(t, open(t)) })
	t.Run("TaskModeMismatch", func(t *testing.T) { testTaskModeMismatch(t, open(t)) })
	t.Run("TaskUpdate", func(t *testing.T) { testTaskUpdate(t, open(t)) })
	t.Run("EvaluationAppendOnly", func(t *testing.T) { testEvaluationAppendOnly(t, open(t)) })
	t.Run("EvaluationLatestEmpty", func(t *testing.T) { testEvaluationLatestEmpty(t, open(t)) })
	t.Run("EvaluationLatestTieBreak", func(t *testing.T) { testEvaluationLatestTieBreak(t, open(t)) })
}

func newScenario(t *testing.T, mode domain.Mode) *domain.Scenario {
	t.Helper()
	var payload domain.ScenarioPayload
	templates := []domain.TaskTemplate{
		{Index: 0, Type: domain.TaskQuestion, Prompt: "first", MaxScore: 100},
		{Index: 1, Type: domain.TaskQuestion, Prompt: "second", MaxScore: 100},
	}
	switch mode {
	case domain.ModeAssessment:
		payload.Assessment = &domain.AssessmentData{QuestionBankKey: "bank", PassingThreshold: 60}
	case domain.ModePBL:
		payload.PBL = &domain.PBLData{Stages: []domain.PBLStage{{Name: "build", TaskIndexes: []int{0, 1}}}}
		templates[0].Type = domain.TaskCreation
		templates[1].Type = domain.TaskChat
	case domain.ModeDiscovery:
		payload.Discovery = &domain.DiscoveryData{NarrativeKey: "tree", MaxTasks: 2}
		templates = nil
	}
	s, err := domain.NewScenario(mode, "1.0.0", domain.SourceRef{Type: "file", Path: "x.yaml"},
		map[string]string{"en": "Title"}, templates, payload)
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	return s
}

func seedProgram(t *testing.T, repos domain.Repositories, mode domain.Mode) (*domain.Scenario, *domain.Program) {
	t.Helper()
	ctx := context.Background()
	scenario := newScenario(t, mode)
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Scenarios.Create() error = %v", err)
	}
	program, err := domain.NewProgram("user-1", scenario, domain.AttemptPractice)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	if err := repos.Programs.Create(ctx, program); err != nil {
		t.Fatalf("Programs.Create() error = %v", err)
	}
	return scenario, program
}

func testScenarioRoundTrip(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	scenario := newScenario(t, domain.ModeAssessment)
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.Scenarios.FindByID(ctx, scenario.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.Mode != domain.ModeAssessment {
		t.Errorf("Mode = %q; want %q", got.Mode, domain.ModeAssessment)
	}
	if got.Payload.Assessment == nil || got.Payload.Assessment.PassingThreshold != 60 {
		t.Errorf("Payload.Assessment = %+v; want threshold 60", got.Payload.Assessment)
	}
	if len(got.Templates) != 2 {
		t.Errorf("len(Templates) = %d; want 2", len(got.Templates))
	}
	if got.LocalizedTitle("de") != "Title" {
		t.Errorf("LocalizedTitle(de) = %q; want en fallback", got.LocalizedTitle("de"))
	}
}

func testScenarioNotFound(t *testing.T, repos domain.Repositories) {
	_, err := repos.Scenarios.FindByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByID(missing) error = %v; want ErrNotFound", err)
	}
}

func testScenarioList(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	assessment := newScenario(t, domain.ModeAssessment)
	pbl := newScenario(t, domain.ModePBL)
	for _, s := range []*domain.Scenario{assessment, pbl} {
		if err := repos.Scenarios.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := repos.Scenarios.List(ctx, domain.ScenarioFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() returned %d scenarios; want 2", len(all))
	}

	mode := domain.ModePBL
	filtered, err := repos.Scenarios.List(ctx, domain.ScenarioFilter{Mode: &mode})
	if err != nil {
		t.Fatalf("List(mode=pbl) error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != pbl.ID {
		t.Errorf("List(mode=pbl) = %d results; want only the pbl scenario", len(filtered))
	}
}

func testScenarioModeImmutable(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	scenario := newScenario(t, domain.ModeAssessment)
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	mode := domain.ModeDiscovery
	_, err := repos.Scenarios.Update(ctx, scenario.ID, domain.ScenarioPatch{Mode: &mode})
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("Update(mode change) error = %v; want ErrInvariantViolation", err)
	}

	status := domain.ScenarioActive
	updated, err := repos.Scenarios.Update(ctx, scenario.ID, domain.ScenarioPatch{Status: &status})
	if err != nil {
		t.Fatalf("Update(status) error = %v", err)
	}
	if updated.Status != domain.ScenarioActive {
		t.Errorf("Status = %q; want active", updated.Status)
	}
}

func testProgramModeMismatch(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	scenario := newScenario(t, domain.ModeAssessment)
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	program, err := domain.NewProgram("user-1", scenario, domain.AttemptFormal)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	program.Mode = domain.ModePBL
	program.Payload = domain.ProgramPayload{PBL: &domain.PBLState{}}

	if err := repos.Programs.Create(ctx, program); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("Create(mode mismatch) error = %v; want ErrInvariantViolation", err)
	}
}

func testProgramRevisionConflict(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	_, program := seedProgram(t, repos, domain.ModeAssessment)

	updated, err := repos.Programs.UpdateStatus(ctx, program.ID, program.Revision, domain.ProgramPaused)
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Revision != program.Revision+1 {
		t.Errorf("Revision = %d; want %d", updated.Revision, program.Revision+1)
	}

	// A second writer holding the stale revision loses.
	_, err = repos.Programs.UpdateStatus(ctx, program.ID, program.Revision, domain.ProgramAbandoned)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("UpdateStatus(stale revision) error = %v; want ErrConflict", err)
	}
}

func testProgramTerminalImmutable(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	_, program := seedProgram(t, repos, domain.ModeAssessment)

	updated, err := repos.Programs.UpdateStatus(ctx, program.ID, program.Revision, domain.ProgramAbandoned)
	if err != nil {
		t.Fatalf("UpdateStatus(abandoned) error = %v", err)
	}

	seconds := 30
	_, err = repos.Programs.Update(ctx, program.ID, domain.ProgramPatch{
		Revision:         updated.Revision,
		TimeSpentSeconds: &seconds,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Update(terminal program) error = %v; want ErrConflict", err)
	}
}

func testCreateWithTasks(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	scenario := newScenario(t, domain.ModeAssessment)
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	program, err := domain.NewProgram("user-1", scenario, domain.AttemptPractice)
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	var tasks []*domain.Task
	for _, tmpl := range scenario.Templates {
		task, err := domain.NewTask(program, tmpl)
		if err != nil {
			t.Fatalf("NewTask() error = %v", err)
		}
		tasks = append(tasks, task)
	}

	if err := repos.Programs.CreateWithTasks(ctx, program, tasks); err != nil {
		t.Fatalf("CreateWithTasks() error = %v", err)
	}

	got, err := repos.Tasks.FindByProgram(ctx, program.ID)
	if err != nil {
		t.Fatalf("FindByProgram() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindByProgram() returned %d tasks; want 2", len(got))
	}
	for i, task := range got {
		if task.Index != i {
			t.Errorf("tasks[%d].Index = %d; want %d", i, task.Index, i)
		}
		if task.Mode != program.Mode {
			t.Errorf("tasks[%d].Mode = %q; want %q", i, task.Mode, program.Mode)
		}
	}

	// Bulk-created tasks must be addressable individually, not only
	// through their program.
	for _, task := range got {
		byID, err := repos.Tasks.FindByID(ctx, task.ID)
		if err != nil {
			t.Fatalf("FindByID(%s) error = %v", task.ID, err)
		}
		if byID.ProgramID != program.ID {
			t.Errorf("FindByID(%s).ProgramID = %q; want %q", task.ID, byID.ProgramID, program.ID)
		}
	}
}

func testTaskModeMismatch(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	_, program := seedProgram(t, repos, domain.ModeAssessment)

	task, err := domain.NewTask(program, domain.TaskTemplate{Index: 0, Type: domain.TaskQuestion, Prompt: "q"})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	task.Mode = domain.ModePBL

	if err := repos.Tasks.Create(ctx, task); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("Create(mode mismatch) error = %v; want ErrInvariantViolation", err)
	}
}

func testTaskUpdate(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	_, program := seedProgram(t, repos, domain.ModeAssessment)

	task, err := domain.NewTask(program, domain.TaskTemplate{Index: 0, Type: domain.TaskQuestion, Prompt: "q"})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	if err := repos.Tasks.Create(ctx, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := task.RecordInteraction(domain.ActorUser, "answer A"); err != nil {
		t.Fatalf("RecordInteraction() error = %v", err)
	}
	status := task.Status
	updated, err := repos.Tasks.Update(ctx, task.ID, domain.TaskPatch{
		Status:       &status,
		Interactions: task.Interactions,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != domain.TaskActive {
		t.Errorf("Status = %q; want active", updated.Status)
	}
	if len(updated.Interactions) != 1 {
		t.Errorf("len(Interactions) = %d; want 1", len(updated.Interactions))
	}

	// Dropping recorded interactions is rejected, and so is rewriting
	// them in place.
	_, err = repos.Tasks.Update(ctx, task.ID, domain.TaskPatch{Interactions: []domain.Interaction{}})
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("Update(truncated interactions) error = %v; want ErrInvariantViolation", err)
	}
	rewritten := append([]domain.Interaction{}, updated.Interactions...)
	rewritten[0].Content = "answer B"
	_, err = repos.Tasks.Update(ctx, task.ID, domain.TaskPatch{Interactions: rewritten})
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("Update(rewritten interactions) error = %v; want ErrInvariantViolation", err)
	}
}

func testEvaluationAppendOnly(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	first, err := domain.NewTaskEvaluation("task-1", 40, nil, domain.Feedback{Summary: "try again"}, false)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	second, err := domain.NewTaskEvaluation("task-1", 85, map[string]int{"logic": 85}, domain.Feedback{Summary: "passed"}, true)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	for _, eval := range []*domain.Evaluation{first, second} {
		if err := repos.Evaluations.Create(ctx, eval); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	history, err := repos.Evaluations.FindByTarget(ctx, domain.EvaluationTask, "task-1")
	if err != nil {
		t.Fatalf("FindByTarget() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("FindByTarget() returned %d evaluations; want 2", len(history))
	}
	if history[0].ID != first.ID {
		t.Errorf("history[0] = %q; want the oldest evaluation first", history[0].ID)
	}

	latest, err := repos.Evaluations.Latest(ctx, domain.EvaluationTask, "task-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest() = %q; want the most recent evaluation", latest.ID)
	}
	if !latest.Passed || latest.Score != 85 {
		t.Errorf("Latest() = score %d passed %t; want 85 true", latest.Score, latest.Passed)
	}
}

func testEvaluationLatestEmpty(t *testing.T, repos domain.Repositories) {
	_, err := repos.Evaluations.Latest(context.Background(), domain.EvaluationTask, "nothing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Latest(no evaluations) error = %v; want ErrNotFound", err)
	}
}

func testEvaluationLatestTieBreak(t *testing.T, repos domain.Repositories) {
	ctx := context.Background()
	first, err := domain.NewTaskEvaluation("task-tie", 40, nil, domain.Feedback{}, false)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	second, err := domain.NewTaskEvaluation("task-tie", 90, nil, domain.Feedback{}, true)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	first.CreatedAt, second.CreatedAt = now, now

	winner := first
	if second.ID > first.ID {
		winner = second
	}

	// Insert the winner first so an insertion-order tie-break would pick
	// the wrong row.
	if err := repos.Evaluations.Create(ctx, winner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	loser := first
	if winner == first {
		loser = second
	}
	if err := repos.Evaluations.Create(ctx, loser); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	latest, err := repos.Evaluations.Latest(ctx, domain.EvaluationTask, "task-tie")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != winner.ID {
		t.Errorf("Latest().ID = %s; want %s (highest id on equal created_at)", latest.ID, winner.ID)
	}
}
