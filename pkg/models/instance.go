package models

import "time"

type WorkflowKind string

const (
	FeatureWorkflowKind WorkflowKind = "feature"
	EpicWorkflowKind    WorkflowKind = "epic"
)

type InstanceStatus string

const (
	ActiveInstanceStatus    InstanceStatus = "active"
	BlockedInstanceStatus   InstanceStatus = "blocked"
	CompletedInstanceStatus InstanceStatus = "completed"
	AbandonedInstanceStatus InstanceStatus = "abandoned"
)

// WorkflowInstance is the persisted document for one feature or epic.
// It owns all phases, sprints and contracts; every mutation goes through
// the service layer and is saved with an optimistic version check.
type WorkflowInstance struct {
	ID           string         `json:"id"`            // Slug identifier (e.g., "001-user-auth")
	Kind         WorkflowKind   `json:"kind"`          // "feature" or "epic"
	Status       InstanceStatus `json:"status"`        // Overall lifecycle status
	CurrentPhase PhaseName      `json:"current_phase"` // Phase currently in progress (or last reached)
	Version      int64          `json:"version"`       // Monotonic, bumped on every save
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Phases       []Phase        `json:"phases"`
	Sprints      []Sprint       `json:"sprints,omitempty"`
	Contracts    []Contract     `json:"contracts,omitempty"`
}

// Phase returns the phase with the given name, or nil.
func (w *WorkflowInstance) Phase(name PhaseName) *Phase {
	for i := range w.Phases {
		if w.Phases[i].Name == name {
			return &w.Phases[i]
		}
	}
	return nil
}

// Sprint returns the sprint with the given id, or nil.
func (w *WorkflowInstance) Sprint(id string) *Sprint {
	for i := range w.Sprints {
		if w.Sprints[i].ID == id {
			return &w.Sprints[i]
		}
	}
	return nil
}

// Contract returns the contract with the given id, or nil.
func (w *WorkflowInstance) Contract(id string) *Contract {
	for i := range w.Contracts {
		if w.Contracts[i].ID == id {
			return &w.Contracts[i]
		}
	}
	return nil
}

// Terminal reports whether no further mutation is permitted.
func (w *WorkflowInstance) Terminal() bool {
	return w.Status == CompletedInstanceStatus || w.Status == AbandonedInstanceStatus
}
