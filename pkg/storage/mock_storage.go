package storage

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// mockStore implements Store with in-memory storage. Documents are
// deep-copied on the way in and out so callers never share state with
// the store, matching the isolation a real store provides.
type mockStore struct {
	mu        sync.Mutex
	instances map[string]*models.WorkflowInstance
	events    map[string][]models.Event

	// SaveHook, when set, runs before the version check on every Save.
	// Tests use it to inject concurrent writers.
	saveHook func(inst *models.WorkflowInstance)
}

// NewMockStore returns an empty in-memory Store for tests and examples.
func NewMockStore() Store {
	return &mockStore{
		instances: make(map[string]*models.WorkflowInstance),
		events:    make(map[string][]models.Event),
	}
}

// NewMockStoreWithHook returns an in-memory Store whose Save calls hook
// before performing the version check.
func NewMockStoreWithHook(hook func(inst *models.WorkflowInstance)) Store {
	return &mockStore{
		instances: make(map[string]*models.WorkflowInstance),
		events:    make(map[string][]models.Event),
		saveHook:  hook,
	}
}

func (m *mockStore) Load(id string) (*models.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(inst)
}

func (m *mockStore) Save(inst *models.WorkflowInstance, expectedVersion int64, events []models.Event) (int64, error) {
	if m.saveHook != nil {
		m.saveHook(inst)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.instances[inst.ID]
	switch {
	case expectedVersion == 0 && exists:
		return 0, &ConflictError{InstanceID: inst.ID, Expected: 0, Actual: stored.Version}
	case expectedVersion != 0 && !exists:
		return 0, ErrNotFound
	case expectedVersion != 0 && stored.Version != expectedVersion:
		return 0, &ConflictError{InstanceID: inst.ID, Expected: expectedVersion, Actual: stored.Version}
	}

	cp, err := deepCopy(inst)
	if err != nil {
		return 0, err
	}
	cp.Version = expectedVersion + 1
	m.instances[inst.ID] = cp
	m.events[inst.ID] = append(m.events[inst.ID], events...)
	return cp.Version, nil
}

func (m *mockStore) List() ([]models.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WorkflowInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		cp, err := deepCopy(inst)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) Events(instanceID string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.events[instanceID]...), nil
}

func (m *mockStore) Close() error {
	return nil
}

func deepCopy(inst *models.WorkflowInstance) (*models.WorkflowInstance, error) {
	data, err := json.Marshal(inst)
	if err != nil {
		return nil, errors.Wrap(err, "copy instance")
	}
	var cp models.WorkflowInstance
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, "copy instance")
	}
	return &cp, nil
}
