package object

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Collection layout. Child collections nest under their parent so listing
// a parent's children never scans the whole store.
const (
	scenariosCollection = "scenarios"
	programsCollection  = "programs"
)

func tasksCollection(programID string) string {
	return "programs/" + programID + "/tasks"
}

func evaluationsCollection(typ domain.EvaluationType, targetID string) string {
	return "evaluations/" + string(typ) + "/" + targetID
}

// NewRepositories bundles the four entity repositories over one object
// store.
func NewRepositories(store ObjectStore) domain.Repositories {
	scenarios := &ScenarioRepository{store: store}
	programs := &ProgramRepository{store: store, scenarios: scenarios}
	return domain.Repositories{
		Scenarios:   scenarios,
		Programs:    programs,
		Tasks:       &TaskRepository{store: store, programs: programs},
		Evaluations: &EvaluationRepository{store: store},
	}
}

// -----------------------------------------------------------------------------
// Scenarios
// -----------------------------------------------------------------------------

// ScenarioRepository implements domain.ScenarioRepository over an object
// store.
type ScenarioRepository struct {
	store ObjectStore
}

var _ domain.ScenarioRepository = (*ScenarioRepository)(nil)

func (r *ScenarioRepository) Create(ctx context.Context, scenario *domain.Scenario) error {
	if !scenario.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, scenario.Mode)
	}
	if err := scenario.Payload.Validate(scenario.Mode); err != nil {
		return err
	}
	return r.store.Put(ctx, scenariosCollection, scenario.ID, scenario)
}

func (r *ScenarioRepository) FindByID(ctx context.Context, id string) (*domain.Scenario, error) {
	var scenario domain.Scenario
	if err := r.store.Get(ctx, scenariosCollection, id, &scenario); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrScenarioNotFound
		}
		return nil, err
	}
	return &scenario, nil
}

func (r *ScenarioRepository) List(ctx context.Context, filter domain.ScenarioFilter) ([]*domain.Scenario, error) {
	ids, err := r.store.List(ctx, scenariosCollection)
	if err != nil {
		return nil, err
	}
	var scenarios []*domain.Scenario
	for _, id := range ids {
		scenario, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.Mode != nil && scenario.Mode != *filter.Mode {
			continue
		}
		if filter.Status != nil && scenario.Status != *filter.Status {
			continue
		}
		scenarios = append(scenarios, scenario)
	}
	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].CreatedAt.After(scenarios[j].CreatedAt)
	})
	return scenarios, nil
}

func (r *ScenarioRepository) Update(ctx context.Context, id string, patch domain.ScenarioPatch) (*domain.Scenario, error) {
	scenario, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(scenario); err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, scenariosCollection, id, scenario); err != nil {
		return nil, err
	}
	return scenario, nil
}

// -----------------------------------------------------------------------------
// Programs
// -----------------------------------------------------------------------------

// ProgramRepository implements domain.ProgramRepository over an object
// store. Revision checks are read-modify-write; the local store serializes
// writers, the S3 store is best-effort last-writer-wins within the
// read-check window.
type ProgramRepository struct {
	store     ObjectStore
	scenarios *ScenarioRepository
}

var _ domain.ProgramRepository = (*ProgramRepository)(nil)

func (r *ProgramRepository) checkScenarioMode(ctx context.Context, program *domain.Program) error {
	scenario, err := r.scenarios.FindByID(ctx, program.ScenarioID)
	if err != nil {
		return err
	}
	return domain.ValidateProgramDraft(program, scenario)
}

func (r *ProgramRepository) Create(ctx context.Context, program *domain.Program) error {
	if err := r.checkScenarioMode(ctx, program); err != nil {
		return err
	}
	return r.store.Put(ctx, programsCollection, program.ID, program)
}

// CreateWithTasks writes the program, then its tasks. On a task failure
// the program document and any written tasks are removed best-effort so
// the unit never appears half-created.
func (r *ProgramRepository) CreateWithTasks(ctx context.Context, program *domain.Program, tasks []*domain.Task) error {
	if err := r.checkScenarioMode(ctx, program); err != nil {
		return err
	}
	for _, task := range tasks {
		if err := domain.ValidateTaskDraft(task, program); err != nil {
			return err
		}
	}
	if err := r.store.Put(ctx, programsCollection, program.ID, program); err != nil {
		return err
	}
	collection := tasksCollection(program.ID)
	rollback := func(written []*domain.Task) {
		for _, task := range written {
			_ = r.store.Delete(ctx, collection, task.ID)
			_ = r.store.Delete(ctx, taskIndexCollection, task.ID)
		}
		_ = r.store.Delete(ctx, programsCollection, program.ID)
	}
	for i, task := range tasks {
		if err := r.store.Put(ctx, collection, task.ID, task); err != nil {
			rollback(tasks[:i])
			return err
		}
		if err := r.store.Put(ctx, taskIndexCollection, task.ID, taskRef{ProgramID: task.ProgramID}); err != nil {
			_ = r.store.Delete(ctx, collection, task.ID)
			rollback(tasks[:i])
			return err
		}
	}
	return nil
}

func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*domain.Program, error) {
	var program domain.Program
	if err := r.store.Get(ctx, programsCollection, id, &program); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProgramNotFound
		}
		return nil, err
	}
	return &program, nil
}

func (r *ProgramRepository) FindByUser(ctx context.Context, userID string, filter domain.ProgramFilter) ([]*domain.Program, error) {
	ids, err := r.store.List(ctx, programsCollection)
	if err != nil {
		return nil, err
	}
	var programs []*domain.Program
	for _, id := range ids {
		program, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if program.UserID != userID {
			continue
		}
		if filter.Status != nil && program.Status != *filter.Status {
			continue
		}
		if filter.Mode != nil && program.Mode != *filter.Mode {
			continue
		}
		if filter.ScenarioID != "" && program.ScenarioID != filter.ScenarioID {
			continue
		}
		if filter.AttemptType != nil && program.AttemptType != *filter.AttemptType {
			continue
		}
		programs = append(programs, program)
	}
	sort.Slice(programs, func(i, j int) bool {
		return programs[i].CreatedAt.After(programs[j].CreatedAt)
	})
	return programs, nil
}

func (r *ProgramRepository) Update(ctx context.Context, id string, patch domain.ProgramPatch) (*domain.Program, error) {
	program, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if program.Revision != patch.Revision {
		return nil, fmt.Errorf("%w: program revision %d, expected %d",
			domain.ErrConflict, program.Revision, patch.Revision)
	}
	if err := patch.Apply(program); err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, programsCollection, id, program); err != nil {
		return nil, err
	}
	return program, nil
}

func (r *ProgramRepository) UpdateStatus(ctx context.Context, id string, revision int64, status domain.ProgramStatus) (*domain.Program, error) {
	return r.Update(ctx, id, domain.ProgramPatch{Revision: revision, Status: &status})
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

// TaskRepository implements domain.TaskRepository over an object store.
// Tasks nest under their program's collection; a separate index maps task
// IDs back to programs for FindByID.
type TaskRepository struct {
	store    ObjectStore
	programs *ProgramRepository
}

var _ domain.TaskRepository = (*TaskRepository)(nil)

type taskRef struct {
	ProgramID string `json:"program_id"`
}

const taskIndexCollection = "tasks-index"

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	program, err := r.programs.FindByID(ctx, task.ProgramID)
	if err != nil {
		return err
	}
	if err := domain.ValidateTaskDraft(task, program); err != nil {
		return err
	}
	if err := r.store.Put(ctx, tasksCollection(task.ProgramID), task.ID, task); err != nil {
		return err
	}
	return r.store.Put(ctx, taskIndexCollection, task.ID, taskRef{ProgramID: task.ProgramID})
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var ref taskRef
	if err := r.store.Get(ctx, taskIndexCollection, id, &ref); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	var task domain.Task
	if err := r.store.Get(ctx, tasksCollection(ref.ProgramID), id, &task); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindByProgram(ctx context.Context, programID string) ([]*domain.Task, error) {
	collection := tasksCollection(programID)
	ids, err := r.store.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var tasks []*domain.Task
	for _, id := range ids {
		var task domain.Task
		if err := r.store.Get(ctx, collection, id, &task); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Index < tasks[j].Index
	})
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(task); err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, tasksCollection(task.ProgramID), id, task); err != nil {
		return nil, err
	}
	return task, nil
}

// -----------------------------------------------------------------------------
// Evaluations
// -----------------------------------------------------------------------------

// EvaluationRepository implements domain.EvaluationRepository over an
// object store. Evaluations nest under their target so listing one
// target's history is a single prefix scan.
type EvaluationRepository struct {
	store ObjectStore
}

var _ domain.EvaluationRepository = (*EvaluationRepository)(nil)

type evalRef struct {
	Type     domain.EvaluationType `json:"type"`
	TargetID string                `json:"target_id"`
}

const evalIndexCollection = "evaluations-index"

func (r *EvaluationRepository) Create(ctx context.Context, eval *domain.Evaluation) error {
	collection := evaluationsCollection(eval.Type, eval.TargetID)
	if err := r.store.Put(ctx, collection, eval.ID, eval); err != nil {
		return err
	}
	return r.store.Put(ctx, evalIndexCollection, eval.ID, evalRef{Type: eval.Type, TargetID: eval.TargetID})
}

func (r *EvaluationRepository) FindByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	var ref evalRef
	if err := r.store.Get(ctx, evalIndexCollection, id, &ref); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEvaluationNotFound
		}
		return nil, err
	}
	var eval domain.Evaluation
	if err := r.store.Get(ctx, evaluationsCollection(ref.Type, ref.TargetID), id, &eval); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEvaluationNotFound
		}
		return nil, err
	}
	return &eval, nil
}

func (r *EvaluationRepository) FindByTarget(ctx context.Context, typ domain.EvaluationType, targetID string) ([]*domain.Evaluation, error) {
	collection := evaluationsCollection(typ, targetID)
	ids, err := r.store.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var evals []*domain.Evaluation
	for _, id := range ids {
		var eval domain.Evaluation
		if err := r.store.Get(ctx, collection, id, &eval); err != nil {
			return nil, err
		}
		evals = append(evals, &eval)
	}
	// ID breaks timestamp ties so "latest" resolves identically on every
	// backend.
	sort.Slice(evals, func(i, j int) bool {
		if !evals[i].CreatedAt.Equal(evals[j].CreatedAt) {
			return evals[i].CreatedAt.Before(evals[j].CreatedAt)
		}
		return evals[i].ID < evals[j].ID
	})
	return evals, nil
}

func (r *EvaluationRepository) Latest(ctx context.Context, typ domain.EvaluationType, targetID string) (*domain.Evaluation, error) {
	evals, err := r.FindByTarget(ctx, typ, targetID)
	if err != nil {
		return nil, err
	}
	if len(evals) == 0 {
		return nil, domain.ErrEvaluationNotFound
	}
	return evals[len(evals)-1], nil
}
