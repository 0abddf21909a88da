// Package contract freezes shared interface artifacts at layer
// boundaries. A contract produced by layer i must be locked before any
// layer i+1 sprint that consumes it may run; once locked it is immutable
// for the remainder of the workflow.
package contract

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// NotLockedError reports an attempt to consume a contract whose
// producing layer has not completed yet.
type NotLockedError struct {
	ContractID     string
	ProducingID    string
	ConsumingLayer int
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("contract %q (produced by sprint %q) is not locked; layer %d cannot consume it",
		e.ContractID, e.ProducingID, e.ConsumingLayer)
}

// Lock freezes every contract produced by a sprint in the given layer.
// All sprints of the layer must be completed; locking a layer with
// incomplete sprints is an error and locks nothing. Already-locked
// contracts keep their original timestamp. Returns the ids locked by
// this call, in lexical order.
func Lock(inst *models.WorkflowInstance, layerIndex int, now time.Time) ([]string, error) {
	producers := make(map[string]bool)
	seen := false
	for i := range inst.Sprints {
		sp := &inst.Sprints[i]
		if sp.LayerIndex != layerIndex {
			continue
		}
		seen = true
		if sp.Status != models.CompletedSprintStatus {
			return nil, errors.Errorf("cannot lock layer %d: sprint %q is %s", layerIndex, sp.ID, sp.Status)
		}
		producers[sp.ID] = true
	}
	if !seen {
		return nil, errors.Errorf("no sprints in layer %d", layerIndex)
	}

	var locked []string
	for i := range inst.Contracts {
		c := &inst.Contracts[i]
		if !producers[c.ProducingSprintID] || c.Locked() {
			continue
		}
		ts := now
		c.LockedAt = &ts
		locked = append(locked, c.ID)
	}
	sort.Strings(locked)
	return locked, nil
}

// AssertAvailable checks that a contract consumed by a sprint in
// consumingLayer is locked, i.e. its producing layer has fully
// completed. A missing contract id is reported against the consuming
// layer as well.
func AssertAvailable(inst *models.WorkflowInstance, contractID string, consumingLayer int) error {
	c := inst.Contract(contractID)
	if c == nil {
		return errors.Errorf("unknown contract %q consumed by layer %d", contractID, consumingLayer)
	}
	if !c.Locked() {
		return &NotLockedError{
			ContractID:     c.ID,
			ProducingID:    c.ProducingSprintID,
			ConsumingLayer: consumingLayer,
		}
	}
	return nil
}
