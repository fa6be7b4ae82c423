package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// TaskStore implements domain.TaskRepository backed by SQLite.
type TaskStore struct {
	db       *DB
	programs *ProgramStore
}

var _ domain.TaskRepository = (*TaskStore)(nil)

// NewTaskStore creates a new SQLite-backed task store.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db, programs: NewProgramStore(db)}
}

const taskColumns = `id, program_id, mode, task_index, type, status, content,
	interactions, score, max_score, pass_count, created_at, updated_at, completed_at`

// Create persists a task after enforcing the mode-propagation invariant
// against the parent program.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	program, err := s.programs.programByID(ctx, task.ProgramID)
	if err != nil {
		return err
	}
	if err := domain.ValidateTaskDraft(task, program); err != nil {
		return err
	}
	return insertTask(ctx, s.db, task)
}

func insertTask(ctx context.Context, ex execer, task *domain.Task) error {
	content, err := marshalJSON("content", task.Content)
	if err != nil {
		return err
	}
	interactions, err := marshalJSON("interactions", task.Interactions)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO tasks (id, program_id, mode, task_index, type, status, content,
			interactions, score, max_score, pass_count, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ProgramID, string(task.Mode), task.Index, string(task.Type),
		string(task.Status), content, interactions, task.Score, task.MaxScore,
		task.PassCount, task.CreatedAt, task.UpdatedAt, nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// FindByID retrieves a task by ID.
func (s *TaskStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row.Scan)
}

// FindByProgram returns the program's tasks strictly ordered by template
// index.
func (s *TaskStore) FindByProgram(ctx context.Context, programID string) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE program_id = ? ORDER BY task_index`, programID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Update applies a partial update; mode changes are rejected.
func (s *TaskStore) Update(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(task); err != nil {
		return nil, err
	}

	interactions, err := marshalJSON("interactions", task.Interactions)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, interactions = ?, score = ?, pass_count = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(task.Status), interactions, task.Score, task.PassCount,
		task.UpdatedAt, nullTime(task.CompletedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func scanTask(scan func(dest ...any) error) (*domain.Task, error) {
	var (
		task                  domain.Task
		mode, typ, status     string
		content, interactions sql.NullString
		completedAt           sql.NullTime
	)
	err := scan(
		&task.ID, &task.ProgramID, &mode, &task.Index, &typ, &status,
		&content, &interactions, &task.Score, &task.MaxScore, &task.PassCount,
		&task.CreatedAt, &task.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Mode = domain.Mode(mode)
	task.Type = domain.TaskType(typ)
	task.Status = domain.TaskStatus(status)
	if err := unmarshalJSON("content", content, &task.Content); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("interactions", interactions, &task.Interactions); err != nil {
		return nil, err
	}
	task.CompletedAt = timePtr(completedAt)
	return &task, nil
}
