package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// EvaluationStore implements domain.EvaluationRepository backed by SQLite.
// Evaluations are append-only; there is no update path.
type EvaluationStore struct {
	db *DB
}

var _ domain.EvaluationRepository = (*EvaluationStore)(nil)

// NewEvaluationStore creates a new SQLite-backed evaluation store.
func NewEvaluationStore(db *DB) *EvaluationStore {
	return &EvaluationStore{db: db}
}

const evaluationColumns = `id, type, target_id, score, domain_scores, feedback,
	passed, created_at`

// Create appends an evaluation record.
func (s *EvaluationStore) Create(ctx context.Context, eval *domain.Evaluation) error {
	domainScores, err := marshalJSON("domain_scores", eval.DomainScores)
	if err != nil {
		return err
	}
	feedback, err := marshalJSON("feedback", eval.Feedback)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, type, target_id, score, domain_scores,
			feedback, passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		eval.ID, string(eval.Type), eval.TargetID, eval.Score, domainScores,
		feedback, eval.Passed, eval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// FindByID retrieves an evaluation by ID.
func (s *EvaluationStore) FindByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	return scanEvaluation(row.Scan)
}

// FindByTarget returns evaluations of one type for a target, oldest first.
func (s *EvaluationStore) FindByTarget(ctx context.Context, typ domain.EvaluationType, targetID string) ([]*domain.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		WHERE type = ? AND target_id = ? ORDER BY created_at, id`, string(typ), targetID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*domain.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows.Scan)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}
	return evals, rows.Err()
}

// Latest returns the most recent evaluation for a target. Ties on
// created_at break by id so every backend resolves them the same way.
func (s *EvaluationStore) Latest(ctx context.Context, typ domain.EvaluationType, targetID string) (*domain.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		WHERE type = ? AND target_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, string(typ), targetID)
	return scanEvaluation(row.Scan)
}

func scanEvaluation(scan func(dest ...any) error) (*domain.Evaluation, error) {
	var (
		eval                   domain.Evaluation
		typ                    string
		domainScores, feedback sql.NullString
	)
	err := scan(
		&eval.ID, &typ, &eval.TargetID, &eval.Score, &domainScores,
		&feedback, &eval.Passed, &eval.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEvaluationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}

	eval.Type = domain.EvaluationType(typ)
	if err := unmarshalJSON("domain_scores", domainScores, &eval.DomainScores); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("feedback", feedback, &eval.Feedback); err != nil {
		return nil, err
	}
	return &eval, nil
}
