package models

import "time"

type PhaseName string

const (
	SpecificationPhase  PhaseName = "specification"
	ClarificationPhase  PhaseName = "clarification"
	PlanningPhase       PhaseName = "planning"
	TasksPhase          PhaseName = "tasks"
	ValidationPhase     PhaseName = "validation"
	ImplementationPhase PhaseName = "implementation"
	OptimizationPhase   PhaseName = "optimization"
	DeploymentPhase     PhaseName = "deployment"
	FinalizationPhase   PhaseName = "finalization"
)

// PhaseOrder is the strict lifecycle sequence. Phases complete in this
// order with no skipping and no re-ordering.
var PhaseOrder = []PhaseName{
	SpecificationPhase,
	ClarificationPhase,
	PlanningPhase,
	TasksPhase,
	ValidationPhase,
	ImplementationPhase,
	OptimizationPhase,
	DeploymentPhase,
	FinalizationPhase,
}

// ValidPhaseName reports whether name is one of the nine lifecycle phases.
func ValidPhaseName(name PhaseName) bool {
	for _, p := range PhaseOrder {
		if p == name {
			return true
		}
	}
	return false
}

type PhaseStatus string

const (
	PendingPhaseStatus    PhaseStatus = "pending"
	InProgressPhaseStatus PhaseStatus = "in_progress"
	CompletedPhaseStatus  PhaseStatus = "completed"
	FailedPhaseStatus     PhaseStatus = "failed"
	BlockedPhaseStatus    PhaseStatus = "blocked"
)

// Phase is one ordered step in the workflow lifecycle.
type Phase struct {
	Name        PhaseName   `json:"name"`
	Status      PhaseStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Gate        *Gate       `json:"gate,omitempty"` // Nil when the phase has no approval checkpoint
}

type GateKind string

const (
	ManualGate    GateKind = "manual"
	AutomaticGate GateKind = "automatic"
)

type GateStatus string

const (
	PendingGateStatus  GateStatus = "pending"
	ApprovedGateStatus GateStatus = "approved"
	RejectedGateStatus GateStatus = "rejected"
)

// Gate is a blocking approval checkpoint attached to a phase. A phase
// with a gate cannot complete until the gate is approved.
type Gate struct {
	Kind       GateKind   `json:"kind"`
	Status     GateStatus `json:"status"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}
