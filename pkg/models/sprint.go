package models

import "time"

type SprintStatus string

const (
	PendingSprintStatus    SprintStatus = "pending"
	InProgressSprintStatus SprintStatus = "in_progress"
	CompletedSprintStatus  SprintStatus = "completed"
	BlockedSprintStatus    SprintStatus = "blocked"
)

// Sprint is a unit of parallelizable work inside the implementation
// phase. Its layer index is assigned by the scheduler and a sprint may
// only run once every dependency (all in strictly earlier layers) has
// completed.
type Sprint struct {
	ID                string       `json:"id"`
	Status            SprintStatus `json:"status"`
	Dependencies      []string     `json:"dependencies,omitempty"`       // Sprint ids within the same instance
	EstimatedHours    float64      `json:"estimated_hours"`
	LayerIndex        int          `json:"layer_index"`
	ContractsProduced []string     `json:"contracts_produced,omitempty"` // Contract ids this sprint outputs
	ContractsConsumed []string     `json:"contracts_consumed,omitempty"` // Contract ids this sprint reads
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

// SprintDecl is the validated input shape produced by the external plan
// document: an id, its declared dependencies and contract interfaces.
// Graph construction consumes declarations, never prose.
type SprintDecl struct {
	ID             string
	DependsOn      []string
	EstimatedHours float64
	Produces       []string
	Consumes       []string
}
