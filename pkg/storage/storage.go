package storage

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// ErrNotFound is returned when no instance exists under the requested id.
var ErrNotFound = errors.New("workflow instance not found")

// ConflictError signals an optimistic-lock collision: the stored version
// no longer matches the version the caller loaded. The caller must
// reload, reapply its mutation and save again.
type ConflictError struct {
	InstanceID string
	Expected   int64
	Actual     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on instance %q: expected %d, stored %d",
		e.InstanceID, e.Expected, e.Actual)
}

// Store defines the durable document store for workflow instances.
//
// Save is atomic: a reader observes either the previous document or the
// new one in full, never a partial write. Every save carries the version
// the caller loaded; a mismatch fails with *ConflictError and writes
// nothing. expectedVersion 0 creates the instance. Journal events are
// written in the same transaction as the document.
type Store interface {
	Load(id string) (*models.WorkflowInstance, error)
	Save(inst *models.WorkflowInstance, expectedVersion int64, events []models.Event) (int64, error)
	List() ([]models.WorkflowInstance, error)
	Events(instanceID string) ([]models.Event, error)
	Close() error
}
