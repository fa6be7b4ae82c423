package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// ProgramStore implements domain.ProgramRepository backed by SQLite.
// Programs are the unit of optimistic concurrency: updates are guarded by
// the revision column.
type ProgramStore struct {
	db        *DB
	scenarios *ScenarioStore
}

var _ domain.ProgramRepository = (*ProgramStore)(nil)

// NewProgramStore creates a new SQLite-backed program store.
func NewProgramStore(db *DB) *ProgramStore {
	return &ProgramStore{db: db, scenarios: NewScenarioStore(db)}
}

const programColumns = `id, user_id, scenario_id, mode, status, attempt_type,
	current_task_index, completed_task_count, total_task_count, score,
	domain_scores, time_spent_seconds, payload, revision,
	created_at, updated_at, completed_at`

// Create persists a program after enforcing the mode-propagation invariant
// against the referenced scenario.
func (s *ProgramStore) Create(ctx context.Context, program *domain.Program) error {
	scenarioMode, err := s.scenarios.scenarioMode(ctx, program.ScenarioID)
	if err != nil {
		return err
	}
	if program.Mode != scenarioMode {
		return fmt.Errorf("%w: program mode %q does not match scenario mode %q",
			domain.ErrInvariantViolation, program.Mode, scenarioMode)
	}
	if err := program.Payload.Validate(program.Mode); err != nil {
		return err
	}
	return s.insert(ctx, s.db, program)
}

// CreateWithTasks persists a program and its initial tasks in one
// transaction. Any task failing validation rolls back the whole unit.
func (s *ProgramStore) CreateWithTasks(ctx context.Context, program *domain.Program, tasks []*domain.Task) error {
	scenarioMode, err := s.scenarios.scenarioMode(ctx, program.ScenarioID)
	if err != nil {
		return err
	}
	if program.Mode != scenarioMode {
		return fmt.Errorf("%w: program mode %q does not match scenario mode %q",
			domain.ErrInvariantViolation, program.Mode, scenarioMode)
	}
	if err := program.Payload.Validate(program.Mode); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create program: %w", err)
	}
	defer tx.Rollback()

	if err := s.insert(ctx, tx, program); err != nil {
		return err
	}
	for _, task := range tasks {
		if err := domain.ValidateTaskDraft(task, program); err != nil {
			return err
		}
		if err := insertTask(ctx, tx, task); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create program: %w", err)
	}
	return nil
}

func (s *ProgramStore) insert(ctx context.Context, ex execer, program *domain.Program) error {
	domainScores, err := marshalJSON("domain_scores", program.DomainScores)
	if err != nil {
		return err
	}
	payload, err := marshalJSON("payload", program.Payload)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO programs (id, user_id, scenario_id, mode, status, attempt_type,
			current_task_index, completed_task_count, total_task_count, score,
			domain_scores, time_spent_seconds, payload, revision,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		program.ID, program.UserID, program.ScenarioID, string(program.Mode),
		string(program.Status), string(program.AttemptType),
		program.CurrentTaskIndex, program.CompletedTaskCount, program.TotalTaskCount,
		program.Score, domainScores, program.TimeSpentSeconds, payload,
		program.Revision, program.CreatedAt, program.UpdatedAt, nullTime(program.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

// FindByID retrieves a program by ID.
func (s *ProgramStore) FindByID(ctx context.Context, id string) (*domain.Program, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = ?`, id)
	return scanProgram(row.Scan)
}

// FindByUser returns the user's programs, newest first.
func (s *ProgramStore) FindByUser(ctx context.Context, userID string, filter domain.ProgramFilter) ([]*domain.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE user_id = ?`
	args := []any{userID}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Mode != nil {
		query += " AND mode = ?"
		args = append(args, string(*filter.Mode))
	}
	if filter.ScenarioID != "" {
		query += " AND scenario_id = ?"
		args = append(args, filter.ScenarioID)
	}
	if filter.AttemptType != nil {
		query += " AND attempt_type = ?"
		args = append(args, string(*filter.AttemptType))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var programs []*domain.Program
	for rows.Next() {
		program, err := scanProgram(rows.Scan)
		if err != nil {
			return nil, err
		}
		programs = append(programs, program)
	}
	return programs, rows.Err()
}

// Update applies a partial update guarded by the revision column. A stale
// revision returns ErrConflict so callers re-read and retry.
func (s *ProgramStore) Update(ctx context.Context, id string, patch domain.ProgramPatch) (*domain.Program, error) {
	program, err := s.FindByID(ctx, id)
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

	domainScores, err := marshalJSON("domain_scores", program.DomainScores)
	if err != nil {
		return nil, err
	}
	payload, err := marshalJSON("payload", program.Payload)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE programs SET status = ?, current_task_index = ?,
			completed_task_count = ?, score = ?, domain_scores = ?,
			time_spent_seconds = ?, payload = ?, revision = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND revision = ?`,
		string(program.Status), program.CurrentTaskIndex,
		program.CompletedTaskCount, program.Score, domainScores,
		program.TimeSpentSeconds, payload, program.Revision,
		program.UpdatedAt, nullTime(program.CompletedAt),
		id, patch.Revision,
	)
	if err != nil {
		return nil, fmt.Errorf("update program: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update program rows: %w", err)
	}
	if n == 0 {
		// Lost the race between read and write.
		return nil, fmt.Errorf("%w: concurrent program update", domain.ErrConflict)
	}
	return program, nil
}

// UpdateStatus wraps Update with lifecycle transition validation.
func (s *ProgramStore) UpdateStatus(ctx context.Context, id string, revision int64, status domain.ProgramStatus) (*domain.Program, error) {
	return s.Update(ctx, id, domain.ProgramPatch{Revision: revision, Status: &status})
}

// programByID is shared with the task store for parent lookups.
func (s *ProgramStore) programByID(ctx context.Context, id string) (*domain.Program, error) {
	return s.FindByID(ctx, id)
}

func scanProgram(scan func(dest ...any) error) (*domain.Program, error) {
	var (
		program                   domain.Program
		mode, status, attemptType string
		domainScores, payload     sql.NullString
		completedAt               sql.NullTime
	)
	err := scan(
		&program.ID, &program.UserID, &program.ScenarioID, &mode, &status,
		&attemptType, &program.CurrentTaskIndex, &program.CompletedTaskCount,
		&program.TotalTaskCount, &program.Score, &domainScores,
		&program.TimeSpentSeconds, &payload, &program.Revision,
		&program.CreatedAt, &program.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProgramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan program: %w", err)
	}

	program.Mode = domain.Mode(mode)
	program.Status = domain.ProgramStatus(status)
	program.AttemptType = domain.AttemptType(attemptType)
	if err := unmarshalJSON("domain_scores", domainScores, &program.DomainScores); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("payload", payload, &program.Payload); err != nil {
		return nil, err
	}
	program.CompletedAt = timePtr(completedAt)
	return &program, nil
}
