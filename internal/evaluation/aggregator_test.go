package evaluation

import (
	"context"
	"testing"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/storage/object"
)

func testRepos(t *testing.T) domain.Repositories {
	t.Helper()
	store, err := object.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return object.NewRepositories(store)
}

// seedAssessment creates a two-question assessment (threshold 60) with a
// program and its tasks persisted.
func seedAssessment(t *testing.T, repos domain.Repositories) (*domain.Program, []*domain.Task) {
	t.Helper()
	ctx := context.Background()

	scenario, err := domain.NewScenario(domain.ModeAssessment, "1.0.0",
		domain.SourceRef{Type: "file", Path: "s1.yaml"},
		map[string]string{"en": "S1"},
		[]domain.TaskTemplate{
			{Index: 0, Type: domain.TaskQuestion, Prompt: "q1", Domain: "logic", MaxScore: 100},
			{Index: 1, Type: domain.TaskQuestion, Prompt: "q2", Domain: "recall", MaxScore: 100},
		},
		domain.ScenarioPayload{Assessment: &domain.AssessmentData{
			QuestionBankKey:  "bank",
			PassingThreshold: 60,
		}})
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Scenarios.Create() error = %v", err)
	}

	program, err := domain.NewProgram("user-1", scenario, domain.AttemptFormal)
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
	return program, tasks
}

func gradeTask(t *testing.T, repos domain.Repositories, taskID string, score int, passed bool) {
	t.Helper()
	eval, err := domain.NewTaskEvaluation(taskID, score, nil, domain.Feedback{}, passed)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	if err := repos.Evaluations.Create(context.Background(), eval); err != nil {
		t.Fatalf("Evaluations.Create() error = %v", err)
	}
}

// Two tasks scored 80 and 50 against a threshold of 60 average to a
// passing 65.
func TestAggregate_BothTasksGraded(t *testing.T) {
	repos := testRepos(t)
	program, tasks := seedAssessment(t, repos)
	gradeTask(t, repos, tasks[0].ID, 80, true)
	gradeTask(t, repos, tasks[1].ID, 50, false)

	agg := NewAggregator(repos, nil)
	result, err := agg.Aggregate(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if result.Evaluation.Score != 65 {
		t.Errorf("Score = %d; want 65", result.Evaluation.Score)
	}
	if !result.Evaluation.Passed {
		t.Error("Passed = false; want true (65 >= 60)")
	}
	if result.EvaluatedTaskCount != 2 {
		t.Errorf("EvaluatedTaskCount = %d; want 2", result.EvaluatedTaskCount)
	}

	// Mirrored onto the program row.
	stored, err := repos.Programs.FindByID(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.Score != 65 {
		t.Errorf("program.Score = %d; want 65", stored.Score)
	}
}

// An ungraded task is excluded entirely, never averaged in as zero.
func TestAggregate_UngradedTaskExcluded(t *testing.T) {
	repos := testRepos(t)
	program, tasks := seedAssessment(t, repos)
	gradeTask(t, repos, tasks[0].ID, 80, true)

	agg := NewAggregator(repos, nil)
	result, err := agg.Aggregate(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if result.Evaluation.Score != 80 {
		t.Errorf("Score = %d; want 80 (ungraded task excluded)", result.Evaluation.Score)
	}
	if result.EvaluatedTaskCount != 1 {
		t.Errorf("EvaluatedTaskCount = %d; want 1", result.EvaluatedTaskCount)
	}
	if result.TotalTaskCount != 2 {
		t.Errorf("TotalTaskCount = %d; want 2", result.TotalTaskCount)
	}
}

// Only the latest evaluation per task counts; earlier attempts are
// superseded.
func TestAggregate_LatestEvaluationOnly(t *testing.T) {
	repos := testRepos(t)
	program, tasks := seedAssessment(t, repos)
	gradeTask(t, repos, tasks[0].ID, 30, false)
	gradeTask(t, repos, tasks[0].ID, 90, true)
	gradeTask(t, repos, tasks[1].ID, 70, true)

	agg := NewAggregator(repos, nil)
	result, err := agg.Aggregate(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if result.Evaluation.Score != 80 {
		t.Errorf("Score = %d; want 80 (round((90+70)/2))", result.Evaluation.Score)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	repos := testRepos(t)
	program, tasks := seedAssessment(t, repos)
	gradeTask(t, repos, tasks[0].ID, 80, true)
	gradeTask(t, repos, tasks[1].ID, 50, false)

	agg := NewAggregator(repos, nil)
	first, err := agg.Aggregate(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	second, err := agg.Aggregate(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("second Aggregate() error = %v", err)
	}

	if first.Evaluation.Score != second.Evaluation.Score {
		t.Errorf("scores differ across runs: %d vs %d",
			first.Evaluation.Score, second.Evaluation.Score)
	}
	if first.Evaluation.Passed != second.Evaluation.Passed {
		t.Errorf("pass verdicts differ across runs")
	}
}

func TestAggregate_DomainMeans(t *testing.T) {
	repos := testRepos(t)
	program, tasks := seedAssessment(t, repos)

	ctx := context.Background()
	first, err := domain.NewTaskEvaluation(tasks[0].ID, 80, map[string]int{"logic": 80}, domain.Feedback{}, true)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	second, err := domain.NewTaskEvaluation(tasks[1].ID, 60, map[string]int{"logic": 40, "recall": 60}, domain.Feedback{}, true)
	if err != nil {
		t.Fatalf("NewTaskEvaluation() error = %v", err)
	}
	for _, eval := range []*domain.Evaluation{first, second} {
		if err := repos.Evaluations.Create(ctx, eval); err != nil {
			t.Fatalf("Evaluations.Create() error = %v", err)
		}
	}

	agg := NewAggregator(repos, nil)
	result, err := agg.Aggregate(ctx, program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	ds := result.Evaluation.DomainScores
	if ds["logic"] != 60 {
		t.Errorf("DomainScores[logic] = %d; want 60 (mean of 80 and 40)", ds["logic"])
	}
	// recall is reported by one task only; its mean is not diluted.
	if ds["recall"] != 60 {
		t.Errorf("DomainScores[recall] = %d; want 60", ds["recall"])
	}
}

// A pbl program passes only when every task has been evaluated.
func TestAggregate_NonAssessmentPassRule(t *testing.T) {
	repos := testRepos(t)
	ctx := context.Background()

	scenario, err := domain.NewScenario(domain.ModePBL, "1.0.0", domain.SourceRef{},
		map[string]string{"en": "Project"},
		[]domain.TaskTemplate{
			{Index: 0, Type: domain.TaskCreation, Prompt: "build"},
			{Index: 1, Type: domain.TaskAnalysis, Prompt: "reflect"},
		},
		domain.ScenarioPayload{PBL: &domain.PBLData{
			Stages: []domain.PBLStage{{Name: "all", TaskIndexes: []int{0, 1}}},
		}})
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	if err := repos.Scenarios.Create(ctx, scenario); err != nil {
		t.Fatalf("Scenarios.Create() error = %v", err)
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

	gradeTask(t, repos, tasks[0].ID, 90, true)

	agg := NewAggregator(repos, nil)
	result, err := agg.Aggregate(ctx, program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if result.Evaluation.Passed {
		t.Error("Passed = true with one of two tasks evaluated; want false")
	}

	gradeTask(t, repos, tasks[1].ID, 75, true)
	result, err = agg.Aggregate(ctx, program.ID)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !result.Evaluation.Passed {
		t.Error("Passed = false with all tasks evaluated; want true")
	}
}
