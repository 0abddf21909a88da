package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// GateRejectedError reports a completion attempt on a phase whose gate
// was rejected. The phase cannot advance until the gate is re-approved
// after an explicit retry.
type GateRejectedError struct {
	Phase models.PhaseName
}

func (e *GateRejectedError) Error() string {
	return fmt.Sprintf("gate for phase %q was rejected; remediate and retry before completing", e.Phase)
}

// PhaseMachine applies lifecycle transitions to a workflow instance.
// Phases advance strictly in declared order: a phase starts only when
// every prior phase is completed, and completes only when its gate (if
// any) is approved. All methods mutate the instance in memory; the
// caller persists the result.
type PhaseMachine struct {
	now func() time.Time
}

func NewPhaseMachine(now func() time.Time) *PhaseMachine {
	if now == nil {
		now = time.Now
	}
	return &PhaseMachine{now: now}
}

func phaseIndex(name models.PhaseName) int {
	for i, p := range models.PhaseOrder {
		if p == name {
			return i
		}
	}
	return -1
}

func (m *PhaseMachine) phase(inst *models.WorkflowInstance, name models.PhaseName) (*models.Phase, error) {
	if !models.ValidPhaseName(name) {
		return nil, errors.Errorf("unknown phase %q", name)
	}
	ph := inst.Phase(name)
	if ph == nil {
		return nil, errors.Errorf("instance %q has no phase %q", inst.ID, name)
	}
	return ph, nil
}

// Start moves a pending phase to in_progress. Every prior phase must be
// completed. An automatic gate is approved on the spot; a manual gate
// stays pending until approved by hand.
func (m *PhaseMachine) Start(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.phase(inst, name)
	if err != nil {
		return err
	}
	if ph.Status != models.PendingPhaseStatus {
		return errors.Errorf("cannot start phase %q: status is %s, want %s", name, ph.Status, models.PendingPhaseStatus)
	}
	for _, prior := range models.PhaseOrder[:phaseIndex(name)] {
		pp := inst.Phase(prior)
		if pp == nil || pp.Status != models.CompletedPhaseStatus {
			return errors.Errorf("cannot start phase %q: prior phase %q is not completed", name, prior)
		}
	}

	started := m.now()
	ph.Status = models.InProgressPhaseStatus
	ph.StartedAt = &started
	inst.CurrentPhase = name

	if ph.Gate != nil && ph.Gate.Kind == models.AutomaticGate && ph.Gate.Status == models.PendingGateStatus {
		approved := m.now()
		ph.Gate.Status = models.ApprovedGateStatus
		ph.Gate.ApprovedAt = &approved
	}
	return nil
}

// Complete moves an in_progress phase to completed and, unless this was
// the final phase, immediately starts the next one so there is no idle
// gap between phases. Completion is refused while the gate is pending
// and fails with *GateRejectedError when the gate was rejected.
func (m *PhaseMachine) Complete(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.phase(inst, name)
	if err != nil {
		return err
	}
	if ph.Status != models.InProgressPhaseStatus {
		return errors.Errorf("cannot complete phase %q: status is %s, want %s", name, ph.Status, models.InProgressPhaseStatus)
	}
	if ph.Gate != nil {
		switch ph.Gate.Status {
		case models.ApprovedGateStatus:
		case models.RejectedGateStatus:
			return &GateRejectedError{Phase: name}
		default:
			return errors.Errorf("cannot complete phase %q: gate is pending approval", name)
		}
	}

	completed := m.now()
	ph.Status = models.CompletedPhaseStatus
	ph.CompletedAt = &completed

	idx := phaseIndex(name)
	if idx == len(models.PhaseOrder)-1 {
		inst.Status = models.CompletedInstanceStatus
		return nil
	}
	return m.Start(inst, models.PhaseOrder[idx+1])
}

// Fail marks an in_progress phase as failed and blocks the instance.
// Downstream phases cannot start until an explicit Retry succeeds.
func (m *PhaseMachine) Fail(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.phase(inst, name)
	if err != nil {
		return err
	}
	if ph.Status != models.InProgressPhaseStatus {
		return errors.Errorf("cannot fail phase %q: status is %s, want %s", name, ph.Status, models.InProgressPhaseStatus)
	}
	ph.Status = models.FailedPhaseStatus
	inst.Status = models.BlockedInstanceStatus
	return nil
}

// Retry resets a failed phase to pending and re-starts it. A rejected
// gate is reset to pending so it must be approved again; a failed phase
// never silently succeeds.
func (m *PhaseMachine) Retry(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.phase(inst, name)
	if err != nil {
		return err
	}
	if ph.Status != models.FailedPhaseStatus {
		return errors.Errorf("cannot retry phase %q: status is %s, want %s", name, ph.Status, models.FailedPhaseStatus)
	}
	ph.Status = models.PendingPhaseStatus
	ph.StartedAt = nil
	ph.CompletedAt = nil
	if ph.Gate != nil && ph.Gate.Status == models.RejectedGateStatus {
		ph.Gate.Status = models.PendingGateStatus
		ph.Gate.ApprovedAt = nil
	}
	inst.Status = models.ActiveInstanceStatus
	return m.Start(inst, name)
}

// ApproveGate approves a pending gate on an in_progress phase.
func (m *PhaseMachine) ApproveGate(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.gatedPhase(inst, name)
	if err != nil {
		return err
	}
	approved := m.now()
	ph.Gate.Status = models.ApprovedGateStatus
	ph.Gate.ApprovedAt = &approved
	return nil
}

// RejectGate rejects a pending gate on an in_progress phase, halting
// advancement until remediation.
func (m *PhaseMachine) RejectGate(inst *models.WorkflowInstance, name models.PhaseName) error {
	ph, err := m.gatedPhase(inst, name)
	if err != nil {
		return err
	}
	ph.Gate.Status = models.RejectedGateStatus
	return nil
}

func (m *PhaseMachine) gatedPhase(inst *models.WorkflowInstance, name models.PhaseName) (*models.Phase, error) {
	ph, err := m.phase(inst, name)
	if err != nil {
		return nil, err
	}
	if ph.Status != models.InProgressPhaseStatus {
		return nil, errors.Errorf("gate decision on phase %q requires status %s, got %s", name, models.InProgressPhaseStatus, ph.Status)
	}
	if ph.Gate == nil {
		return nil, errors.Errorf("phase %q has no gate", name)
	}
	if ph.Gate.Status != models.PendingGateStatus {
		return nil, errors.Errorf("gate for phase %q is already %s", name, ph.Gate.Status)
	}
	return ph, nil
}
