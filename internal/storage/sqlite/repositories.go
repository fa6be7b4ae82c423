package sqlite

import "github.com/pathwise-learning/pathwise/internal/domain"

// NewRepositories bundles the four entity stores over one database handle.
func NewRepositories(db *DB) domain.Repositories {
	return domain.Repositories{
		Scenarios:   NewScenarioStore(db),
		Programs:    NewProgramStore(db),
		Tasks:       NewTaskStore(db),
		Evaluations: NewEvaluationStore(db),
	}
}
