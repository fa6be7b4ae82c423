package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Event kinds published to the lifecycle queue.
const (
	ProgramStarted   = "program.started"
	ProgramCompleted = "program.completed"
	ProgramAbandoned = "program.abandoned"
	TaskCompleted    = "task.completed"
)

// Event is one lifecycle occurrence.
type Event struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	UserID     string      `json:"user_id"`
	ProgramID  string      `json:"program_id"`
	ScenarioID string      `json:"scenario_id,omitempty"`
	TaskID     string      `json:"task_id,omitempty"`
	Mode       domain.Mode `json:"mode"`
	Score      int         `json:"score,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher emits lifecycle events. Implementations must treat publishing
// as best-effort; the engine logs failures and moves on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewProgramEvent builds an event from a program's current state.
func NewProgramEvent(kind string, program *domain.Program) Event {
	return Event{
		ID:         uuid.New().String(),
		Kind:       kind,
		UserID:     program.UserID,
		ProgramID:  program.ID,
		ScenarioID: program.ScenarioID,
		Mode:       program.Mode,
		Score:      program.Score,
		OccurredAt: time.Now(),
	}
}

// NewTaskEvent builds a task-scoped event.
func NewTaskEvent(kind string, program *domain.Program, task *domain.Task) Event {
	e := NewProgramEvent(kind, program)
	e.TaskID = task.ID
	e.Score = task.Score
	return e
}

// AMQPPublisher publishes events over a RabbitMQ connection.
type AMQPPublisher struct {
	conn   *Connection
	logger *slog.Logger
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher creates a publisher over an established connection.
func NewAMQPPublisher(conn *Connection, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{conn: conn, logger: logger}
}

// Publish sends the event to the lifecycle queue.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := p.conn.publishJSON(ctx, LifecycleQueueName, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	p.logger.Debug("published lifecycle event",
		"kind", event.Kind,
		"program_id", event.ProgramID,
		"task_id", event.TaskID,
	)
	return nil
}

// Close closes the underlying connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
