package service

import (
	"sort"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// ResumeController computes the minimal remaining work for an
// interrupted workflow. It is the sole entry point for re-continuing:
// PlanResume is a pure read, idempotent for an unchanged instance, and
// never includes an already-completed sprint in the plan.
type ResumeController struct{}

// PlanResume scans phases in declared order; the first phase not
// completed is the resume point. Inside the implementation phase it
// additionally finds the first execution layer with any incomplete
// sprint and lists only that layer's incomplete sprints.
func (ResumeController) PlanResume(inst *models.WorkflowInstance) models.ResumePlan {
	plan := models.ResumePlan{InstanceID: inst.ID, LayerIndex: -1}

	for _, name := range models.PhaseOrder {
		ph := inst.Phase(name)
		if ph == nil || ph.Status == models.CompletedPhaseStatus {
			continue
		}
		plan.Phase = name
		plan.GatePending = ph.Status == models.InProgressPhaseStatus &&
			ph.Gate != nil && ph.Gate.Status == models.PendingGateStatus

		if name == models.ImplementationPhase && len(inst.Sprints) > 0 {
			plan.LayerIndex, plan.SprintIDs = firstIncompleteLayer(inst.Sprints)
		}
		return plan
	}

	plan.Done = true
	return plan
}

func firstIncompleteLayer(sprints []models.Sprint) (int, []string) {
	maxLayer := 0
	for i := range sprints {
		if sprints[i].LayerIndex > maxLayer {
			maxLayer = sprints[i].LayerIndex
		}
	}
	for layer := 0; layer <= maxLayer; layer++ {
		var incomplete []string
		for i := range sprints {
			sp := &sprints[i]
			if sp.LayerIndex == layer && sp.Status != models.CompletedSprintStatus {
				incomplete = append(incomplete, sp.ID)
			}
		}
		if len(incomplete) > 0 {
			sort.Strings(incomplete)
			return layer, incomplete
		}
	}
	return -1, nil
}
