package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// ScenarioStore implements domain.ScenarioRepository backed by SQLite.
type ScenarioStore struct {
	db *DB
}

var _ domain.ScenarioRepository = (*ScenarioStore)(nil)

// NewScenarioStore creates a new SQLite-backed scenario store.
func NewScenarioStore(db *DB) *ScenarioStore {
	return &ScenarioStore{db: db}
}

const scenarioColumns = `id, mode, status, version, source, title, description,
	templates, payload, created_at, updated_at, published_at`

// Create persists a scenario after re-checking the payload/mode invariant.
func (s *ScenarioStore) Create(ctx context.Context, scenario *domain.Scenario) error {
	if !scenario.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, scenario.Mode)
	}
	if err := scenario.Payload.Validate(scenario.Mode); err != nil {
		return err
	}

	source, err := marshalJSON("source", scenario.Source)
	if err != nil {
		return err
	}
	title, err := marshalJSON("title", scenario.Title)
	if err != nil {
		return err
	}
	description, err := marshalJSON("description", scenario.Description)
	if err != nil {
		return err
	}
	templates, err := marshalJSON("templates", scenario.Templates)
	if err != nil {
		return err
	}
	payload, err := marshalJSON("payload", scenario.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scenarios (id, mode, status, version, source, title, description,
			templates, payload, created_at, updated_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scenario.ID, string(scenario.Mode), string(scenario.Status), scenario.Version,
		source, title, description, templates, payload,
		scenario.CreatedAt, scenario.UpdatedAt, nullTime(scenario.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

// FindByID retrieves a scenario by ID.
func (s *ScenarioStore) FindByID(ctx context.Context, id string) (*domain.Scenario, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id)
	return scanScenario(row.Scan)
}

// List returns scenarios matching the filter, newest first.
func (s *ScenarioStore) List(ctx context.Context, filter domain.ScenarioFilter) ([]*domain.Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE 1=1`
	var args []any
	if filter.Mode != nil {
		query += " AND mode = ?"
		args = append(args, string(*filter.Mode))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		scenario, err := scanScenario(rows.Scan)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, rows.Err()
}

// Update applies a partial update. Mode changes are rejected.
func (s *ScenarioStore) Update(ctx context.Context, id string, patch domain.ScenarioPatch) (*domain.Scenario, error) {
	scenario, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(scenario); err != nil {
		return nil, err
	}

	title, err := marshalJSON("title", scenario.Title)
	if err != nil {
		return nil, err
	}
	description, err := marshalJSON("description", scenario.Description)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE scenarios SET status = ?, version = ?, title = ?, description = ?,
			updated_at = ?, published_at = ?
		WHERE id = ?`,
		string(scenario.Status), scenario.Version, title, description,
		scenario.UpdatedAt, nullTime(scenario.PublishedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update scenario: %w", err)
	}
	return scenario, nil
}

// scenarioMode returns the denormalized mode column for an existing
// scenario, used for the propagation check on program creation.
func (s *ScenarioStore) scenarioMode(ctx context.Context, id string) (domain.Mode, error) {
	var mode string
	err := s.db.QueryRowContext(ctx, "SELECT mode FROM scenarios WHERE id = ?", id).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrScenarioNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scenario mode: %w", err)
	}
	return domain.Mode(mode), nil
}

// scanScenario builds a scenario from a row scan function so it works for
// both QueryRow and Rows.
func scanScenario(scan func(dest ...any) error) (*domain.Scenario, error) {
	var (
		scenario                                     domain.Scenario
		mode, status                                 string
		source, title, description, templates, payload sql.NullString
		publishedAt                                  sql.NullTime
	)
	err := scan(
		&scenario.ID, &mode, &status, &scenario.Version, &source, &title,
		&description, &templates, &payload,
		&scenario.CreatedAt, &scenario.UpdatedAt, &publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScenarioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scenario: %w", err)
	}

	scenario.Mode = domain.Mode(mode)
	scenario.Status = domain.ScenarioStatus(status)
	if err := unmarshalJSON("source", source, &scenario.Source); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("title", title, &scenario.Title); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("description", description, &scenario.Description); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("templates", templates, &scenario.Templates); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("payload", payload, &scenario.Payload); err != nil {
		return nil, err
	}
	scenario.PublishedAt = timePtr(publishedAt)
	return &scenario, nil
}
