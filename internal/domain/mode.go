package domain

// Mode selects one of the three learning modes. It is set once on a
// scenario and propagates unchanged to every program and task beneath it.
type Mode string

const (
	ModeAssessment Mode = "assessment"
	ModePBL        Mode = "pbl"
	ModeDiscovery  Mode = "discovery"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAssessment, ModePBL, ModeDiscovery:
		return true
	}
	return false
}

// ScenarioStatus is the publication state of a scenario.
type ScenarioStatus string

const (
	ScenarioDraft    ScenarioStatus = "draft"
	ScenarioActive   ScenarioStatus = "active"
	ScenarioArchived ScenarioStatus = "archived"
)

// ProgramStatus is the lifecycle state of a program.
type ProgramStatus string

const (
	ProgramActive    ProgramStatus = "active"
	ProgramPaused    ProgramStatus = "paused"
	ProgramCompleted ProgramStatus = "completed"
	ProgramAbandoned ProgramStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s ProgramStatus) Terminal() bool {
	return s == ProgramCompleted || s == ProgramAbandoned
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskType classifies what kind of work a task asks for.
type TaskType string

const (
	TaskQuestion    TaskType = "question"
	TaskChat        TaskType = "chat"
	TaskCreation    TaskType = "creation"
	TaskAnalysis    TaskType = "analysis"
	TaskExploration TaskType = "exploration"
	TaskResearch    TaskType = "research"
	TaskInteraction TaskType = "interaction"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskQuestion, TaskChat, TaskCreation, TaskAnalysis,
		TaskExploration, TaskResearch, TaskInteraction:
		return true
	}
	return false
}

// Iterative reports whether a completed task of this type may be reopened
// for another scored attempt.
func (t TaskType) Iterative() bool {
	switch t {
	case TaskCreation, TaskAnalysis, TaskExploration, TaskResearch:
		return true
	}
	return false
}

// AttemptType distinguishes rehearsal runs from graded runs. Chiefly
// meaningful for assessment mode.
type AttemptType string

const (
	AttemptPractice AttemptType = "practice"
	AttemptFormal   AttemptType = "formal"
)

// Actor identifies who produced an interaction.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorSystem Actor = "system"
)
