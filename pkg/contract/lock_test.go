package contract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/contract"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

func twoLayerInstance() *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID: "demo",
		Sprints: []models.Sprint{
			{ID: "S01", Status: models.CompletedSprintStatus, LayerIndex: 0, ContractsProduced: []string{"api-v1"}},
			{ID: "S02", Status: models.CompletedSprintStatus, LayerIndex: 0},
			{ID: "S03", Status: models.PendingSprintStatus, LayerIndex: 1, ContractsConsumed: []string{"api-v1"}},
		},
		Contracts: []models.Contract{
			{ID: "api-v1", ProducingSprintID: "S01"},
		},
	}
}

func TestLock(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("LocksContractsOfCompletedLayer", func(t *testing.T) {
		inst := twoLayerInstance()
		locked, err := contract.Lock(inst, 0, now)
		assert.NoError(t, err)
		assert.Equal(t, []string{"api-v1"}, locked)
		c := inst.Contract("api-v1")
		assert.True(t, c.Locked())
		assert.Equal(t, now, *c.LockedAt)
	})

	t.Run("RefusesIncompleteLayer", func(t *testing.T) {
		inst := twoLayerInstance()
		inst.Sprints[1].Status = models.InProgressSprintStatus
		locked, err := contract.Lock(inst, 0, now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "S02")
		assert.Nil(t, locked)
		assert.False(t, inst.Contract("api-v1").Locked())
	})

	t.Run("LockIsIdempotentOnTimestamp", func(t *testing.T) {
		inst := twoLayerInstance()
		_, err := contract.Lock(inst, 0, now)
		assert.NoError(t, err)
		later := now.Add(time.Hour)
		locked, err := contract.Lock(inst, 0, later)
		assert.NoError(t, err)
		assert.Empty(t, locked)
		assert.Equal(t, now, *inst.Contract("api-v1").LockedAt)
	})

	t.Run("EmptyLayerIsAnError", func(t *testing.T) {
		inst := twoLayerInstance()
		_, err := contract.Lock(inst, 7, now)
		assert.Error(t, err)
	})
}

func TestAssertAvailable(t *testing.T) {
	t.Run("UnlockedContractIsNotConsumable", func(t *testing.T) {
		inst := twoLayerInstance()
		err := contract.AssertAvailable(inst, "api-v1", 1)
		var notLocked *contract.NotLockedError
		assert.ErrorAs(t, err, &notLocked)
		assert.Equal(t, "api-v1", notLocked.ContractID)
		assert.Equal(t, "S01", notLocked.ProducingID)
		assert.Equal(t, 1, notLocked.ConsumingLayer)
	})

	t.Run("LockedContractIsConsumable", func(t *testing.T) {
		inst := twoLayerInstance()
		_, err := contract.Lock(inst, 0, time.Now())
		assert.NoError(t, err)
		assert.NoError(t, contract.AssertAvailable(inst, "api-v1", 1))
	})

	t.Run("UnknownContract", func(t *testing.T) {
		inst := twoLayerInstance()
		err := contract.AssertAvailable(inst, "nope", 1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})
}
