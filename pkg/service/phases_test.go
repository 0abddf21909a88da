package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/service"
)

func bareInstance() *models.WorkflowInstance {
	inst := &models.WorkflowInstance{ID: "demo", Kind: models.FeatureWorkflowKind, Status: models.ActiveInstanceStatus}
	for _, name := range models.PhaseOrder {
		inst.Phases = append(inst.Phases, models.Phase{Name: name, Status: models.PendingPhaseStatus})
	}
	return inst
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func TestPhaseMachine(t *testing.T) {
	machine := service.NewPhaseMachine(fixedNow)

	t.Run("CannotStartOutOfOrder", func(t *testing.T) {
		inst := bareInstance()
		err := machine.Start(inst, models.PlanningPhase)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "specification")
	})

	t.Run("CannotStartTwice", func(t *testing.T) {
		inst := bareInstance()
		require.NoError(t, machine.Start(inst, models.SpecificationPhase))
		err := machine.Start(inst, models.SpecificationPhase)
		assert.Error(t, err)
	})

	t.Run("UnknownPhase", func(t *testing.T) {
		inst := bareInstance()
		assert.Error(t, machine.Start(inst, "shipping"))
		assert.Error(t, machine.Complete(inst, "shipping"))
	})

	t.Run("CompleteSetsTimestamps", func(t *testing.T) {
		inst := bareInstance()
		require.NoError(t, machine.Start(inst, models.SpecificationPhase))
		require.NoError(t, machine.Complete(inst, models.SpecificationPhase))
		ph := inst.Phase(models.SpecificationPhase)
		assert.Equal(t, fixedNow(), *ph.StartedAt)
		assert.Equal(t, fixedNow(), *ph.CompletedAt)
	})
}

func TestResumeController(t *testing.T) {
	var resumer service.ResumeController

	t.Run("LayerIndexOutsideImplementation", func(t *testing.T) {
		inst := bareInstance()
		inst.Phase(models.SpecificationPhase).Status = models.InProgressPhaseStatus
		plan := resumer.PlanResume(inst)
		assert.Equal(t, models.SpecificationPhase, plan.Phase)
		assert.Equal(t, -1, plan.LayerIndex)
		assert.Empty(t, plan.SprintIDs)
	})

	t.Run("BlockedSprintCountsAsIncomplete", func(t *testing.T) {
		inst := bareInstance()
		for _, name := range models.PhaseOrder[:5] {
			inst.Phase(name).Status = models.CompletedPhaseStatus
		}
		inst.Phase(models.ImplementationPhase).Status = models.InProgressPhaseStatus
		inst.Sprints = []models.Sprint{
			{ID: "S01", Status: models.CompletedSprintStatus, LayerIndex: 0},
			{ID: "S02", Status: models.BlockedSprintStatus, LayerIndex: 0},
			{ID: "S03", Status: models.PendingSprintStatus, LayerIndex: 1},
		}
		plan := resumer.PlanResume(inst)
		assert.Equal(t, models.ImplementationPhase, plan.Phase)
		assert.Equal(t, 0, plan.LayerIndex)
		assert.Equal(t, []string{"S02"}, plan.SprintIDs)
	})

	t.Run("FailedPhaseIsTheResumePoint", func(t *testing.T) {
		inst := bareInstance()
		inst.Phase(models.SpecificationPhase).Status = models.CompletedPhaseStatus
		inst.Phase(models.ClarificationPhase).Status = models.FailedPhaseStatus
		plan := resumer.PlanResume(inst)
		assert.Equal(t, models.ClarificationPhase, plan.Phase)
		assert.False(t, plan.GatePending)
	})
}
