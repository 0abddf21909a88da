package service

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/contract"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/graph"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/scheduler"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/storage"
)

// Logger defines the logging interface for WorkflowService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// maxSaveAttempts bounds the reload-and-retry loop on version conflicts.
const maxSaveAttempts = 10

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// WorkflowService coordinates the workflow lifecycle for persisted
// instances. The service itself holds no instance state: every mutation
// is a load-apply-save cycle guarded by the store's optimistic version
// check, so concurrent writers (e.g. parallel sprint executors) each
// retry on conflict instead of losing updates.
type WorkflowService struct {
	store   storage.Store
	logger  Logger
	machine *PhaseMachine
	resumer ResumeController
	now     func() time.Time
}

func NewWorkflowService(store storage.Store, logger Logger) *WorkflowService {
	return &WorkflowService{
		store:   store,
		logger:  logger,
		machine: NewPhaseMachine(time.Now),
		now:     time.Now,
	}
}

// InitWorkflow creates a new instance with the nine lifecycle phases
// seeded: specification in_progress, everything else pending. Gates may
// be attached to phases up front; manual gates start pending, automatic
// gates on the initial phase are approved immediately.
func (s *WorkflowService) InitWorkflow(id string, kind models.WorkflowKind, gates map[models.PhaseName]models.GateKind) (*models.WorkflowInstance, error) {
	if !slugPattern.MatchString(id) {
		return nil, errors.Errorf("invalid instance id %q: must be a slug (lowercase letters, digits, dashes)", id)
	}
	if kind != models.FeatureWorkflowKind && kind != models.EpicWorkflowKind {
		return nil, errors.Errorf("invalid workflow kind %q: must be %q or %q", kind, models.FeatureWorkflowKind, models.EpicWorkflowKind)
	}
	for name, gk := range gates {
		if !models.ValidPhaseName(name) {
			return nil, errors.Errorf("gate declared for unknown phase %q", name)
		}
		if gk != models.ManualGate && gk != models.AutomaticGate {
			return nil, errors.Errorf("invalid gate kind %q for phase %q", gk, name)
		}
	}

	created := s.now()
	inst := &models.WorkflowInstance{
		ID:        id,
		Kind:      kind,
		Status:    models.ActiveInstanceStatus,
		CreatedAt: created,
		UpdatedAt: created,
		Phases:    make([]models.Phase, 0, len(models.PhaseOrder)),
	}
	for _, name := range models.PhaseOrder {
		ph := models.Phase{Name: name, Status: models.PendingPhaseStatus}
		if gk, ok := gates[name]; ok {
			ph.Gate = &models.Gate{Kind: gk, Status: models.PendingGateStatus}
		}
		inst.Phases = append(inst.Phases, ph)
	}
	if err := s.machine.Start(inst, models.SpecificationPhase); err != nil {
		return nil, err
	}

	evt := s.event(id, "workflow.initiated", map[string]any{"kind": string(kind)})
	v, err := s.store.Save(inst, 0, []models.Event{evt})
	if err != nil {
		return nil, errors.Wrapf(err, "create instance %q", id)
	}
	inst.Version = v
	s.logger.Infof("Initiated %s workflow %q", kind, id)
	return inst, nil
}

// AttachPlan validates sprint declarations, computes the execution
// layers and persists sprints and contracts onto the instance. Graph
// errors abort the whole attempt with no partial state written. Gate
// declarations from the plan manifest are applied to phases that have
// not completed yet; an existing gate is left untouched.
func (s *WorkflowService) AttachPlan(id string, decls []models.SprintDecl, gates map[models.PhaseName]models.GateKind) (*models.WorkflowInstance, error) {
	g, err := graph.Build(decls)
	if err != nil {
		return nil, err
	}
	sched := scheduler.Plan(g)

	sprints := make([]models.Sprint, 0, len(decls))
	var contracts []models.Contract
	producedBy := make(map[string]string)
	declByID := make(map[string]models.SprintDecl, len(decls))
	for _, d := range decls {
		declByID[d.ID] = d
	}

	for _, sprintID := range g.Nodes() {
		d := declByID[sprintID]
		sprints = append(sprints, models.Sprint{
			ID:                d.ID,
			Status:            models.PendingSprintStatus,
			Dependencies:      g.Deps(d.ID),
			EstimatedHours:    d.EstimatedHours,
			LayerIndex:        sched.LayerIndex(d.ID),
			ContractsProduced: append([]string(nil), d.Produces...),
			ContractsConsumed: append([]string(nil), d.Consumes...),
		})
		for _, cid := range d.Produces {
			if prev, dup := producedBy[cid]; dup {
				return nil, errors.Errorf("contract %q produced by both sprint %q and sprint %q", cid, prev, d.ID)
			}
			producedBy[cid] = d.ID
			contracts = append(contracts, models.Contract{ID: cid, ProducingSprintID: d.ID})
		}
	}
	for _, sprintID := range g.Nodes() {
		d := declByID[sprintID]
		for _, cid := range d.Consumes {
			producer, ok := producedBy[cid]
			if !ok {
				return nil, errors.Errorf("sprint %q consumes unknown contract %q", d.ID, cid)
			}
			if sched.LayerIndex(producer) >= sched.LayerIndex(d.ID) {
				return nil, errors.Errorf("sprint %q consumes contract %q produced in layer %d, but runs in layer %d",
					d.ID, cid, sched.LayerIndex(producer), sched.LayerIndex(d.ID))
			}
		}
	}

	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if len(inst.Sprints) > 0 {
			return nil, errors.Errorf("instance %q already has a sprint plan attached", id)
		}
		for name, gk := range gates {
			ph := inst.Phase(name)
			if ph == nil {
				return nil, errors.Errorf("gate declared for unknown phase %q", name)
			}
			if ph.Status == models.CompletedPhaseStatus || ph.Gate != nil {
				continue
			}
			ph.Gate = &models.Gate{Kind: gk, Status: models.PendingGateStatus}
			if gk == models.AutomaticGate && ph.Status == models.InProgressPhaseStatus {
				ts := s.now()
				ph.Gate.Status = models.ApprovedGateStatus
				ph.Gate.ApprovedAt = &ts
			}
		}
		inst.Sprints = sprints
		inst.Contracts = contracts
		return []models.Event{s.event(id, "plan.attached", map[string]any{
			"sprints": len(sprints),
			"layers":  len(sched.Layers()),
		})}, nil
	})
}

// StartSprint records that an external executor picked up a sprint. The
// implementation phase must be in progress, every dependency completed,
// and every consumed contract locked.
func (s *WorkflowService) StartSprint(id, sprintID string) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		ph := inst.Phase(models.ImplementationPhase)
		if ph == nil || ph.Status != models.InProgressPhaseStatus {
			return nil, errors.Errorf("cannot start sprint %q: implementation phase is not in progress", sprintID)
		}
		sp := inst.Sprint(sprintID)
		if sp == nil {
			return nil, errors.Errorf("unknown sprint %q on instance %q", sprintID, id)
		}
		if sp.Status != models.PendingSprintStatus && sp.Status != models.BlockedSprintStatus {
			return nil, errors.Errorf("cannot start sprint %q: status is %s", sprintID, sp.Status)
		}
		for _, dep := range sp.Dependencies {
			depSp := inst.Sprint(dep)
			if depSp == nil || depSp.Status != models.CompletedSprintStatus {
				return nil, errors.Errorf("cannot start sprint %q: dependency %q is not completed", sprintID, dep)
			}
		}
		for _, cid := range sp.ContractsConsumed {
			if err := contract.AssertAvailable(inst, cid, sp.LayerIndex); err != nil {
				return nil, err
			}
		}
		ts := s.now()
		sp.Status = models.InProgressSprintStatus
		sp.StartedAt = &ts
		return []models.Event{s.event(id, "sprint.started", map[string]any{"sprint": sprintID, "layer": sp.LayerIndex})}, nil
	})
}

// CompleteSprint records a finished sprint. When the sprint's layer is
// fully completed its produced contracts are locked; when every sprint
// is completed the implementation phase auto-completes, provided its
// gate (if any) is already approved.
func (s *WorkflowService) CompleteSprint(id, sprintID string) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		sp := inst.Sprint(sprintID)
		if sp == nil {
			return nil, errors.Errorf("unknown sprint %q on instance %q", sprintID, id)
		}
		if sp.Status == models.CompletedSprintStatus {
			return nil, errors.Errorf("sprint %q is already completed", sprintID)
		}
		if sp.Status != models.InProgressSprintStatus {
			return nil, errors.Errorf("cannot complete sprint %q: status is %s, want %s", sprintID, sp.Status, models.InProgressSprintStatus)
		}
		ts := s.now()
		sp.Status = models.CompletedSprintStatus
		sp.CompletedAt = &ts
		evts := []models.Event{s.event(id, "sprint.completed", map[string]any{"sprint": sprintID, "layer": sp.LayerIndex})}

		if layerCompleted(inst, sp.LayerIndex) {
			locked, err := contract.Lock(inst, sp.LayerIndex, s.now())
			if err != nil {
				return nil, err
			}
			for _, cid := range locked {
				evts = append(evts, s.event(id, "contract.locked", map[string]any{"contract": cid, "layer": sp.LayerIndex}))
			}
		}

		if allSprintsCompleted(inst) {
			ph := inst.Phase(models.ImplementationPhase)
			if ph != nil && ph.Status == models.InProgressPhaseStatus &&
				(ph.Gate == nil || ph.Gate.Status == models.ApprovedGateStatus) {
				if err := s.machine.Complete(inst, models.ImplementationPhase); err != nil {
					return nil, err
				}
				evts = append(evts, s.event(id, "phase.completed", map[string]any{"phase": string(models.ImplementationPhase)}))
			}
		}
		return evts, nil
	})
}

// BlockSprint marks a sprint as blocked (an execution attempt failed or
// cannot proceed). The sprint can be re-started once unblocked; the
// phase itself stays in progress.
func (s *WorkflowService) BlockSprint(id, sprintID, reason string) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		sp := inst.Sprint(sprintID)
		if sp == nil {
			return nil, errors.Errorf("unknown sprint %q on instance %q", sprintID, id)
		}
		if sp.Status == models.CompletedSprintStatus {
			return nil, errors.Errorf("cannot block sprint %q: already completed", sprintID)
		}
		sp.Status = models.BlockedSprintStatus
		sp.StartedAt = nil
		return []models.Event{s.event(id, "sprint.blocked", map[string]any{"sprint": sprintID, "reason": reason})}, nil
	})
}

// CompletePhase completes the named phase and auto-starts the next one.
// The implementation phase cannot complete while sprints remain
// incomplete.
func (s *WorkflowService) CompletePhase(id string, name models.PhaseName) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if name == models.ImplementationPhase && len(inst.Sprints) > 0 && !allSprintsCompleted(inst) {
			return nil, errors.Errorf("cannot complete phase %q: incomplete sprints remain", name)
		}
		if err := s.machine.Complete(inst, name); err != nil {
			return nil, err
		}
		evts := []models.Event{s.event(id, "phase.completed", map[string]any{"phase": string(name)})}
		if inst.Status == models.CompletedInstanceStatus {
			evts = append(evts, s.event(id, "workflow.completed", nil))
		}
		return evts, nil
	})
}

// FailPhase marks a phase as failed and blocks the instance.
func (s *WorkflowService) FailPhase(id string, name models.PhaseName, reason string) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if err := s.machine.Fail(inst, name); err != nil {
			return nil, err
		}
		return []models.Event{s.event(id, "phase.failed", map[string]any{"phase": string(name), "reason": reason})}, nil
	})
}

// RetryPhase resets a failed phase to pending and re-starts it.
func (s *WorkflowService) RetryPhase(id string, name models.PhaseName) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if err := s.machine.Retry(inst, name); err != nil {
			return nil, err
		}
		return []models.Event{s.event(id, "phase.retried", map[string]any{"phase": string(name)})}, nil
	})
}

// ApproveGate approves the pending gate of an in-progress phase.
func (s *WorkflowService) ApproveGate(id string, name models.PhaseName) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if err := s.machine.ApproveGate(inst, name); err != nil {
			return nil, err
		}
		return []models.Event{s.event(id, "gate.approved", map[string]any{"phase": string(name)})}, nil
	})
}

// RejectGate rejects the pending gate of an in-progress phase.
func (s *WorkflowService) RejectGate(id string, name models.PhaseName) (*models.WorkflowInstance, error) {
	return s.update(id, func(inst *models.WorkflowInstance) ([]models.Event, error) {
		if err := s.machine.RejectGate(inst, name); err != nil {
			return nil, err
		}
		return []models.Event{s.event(id, "gate.rejected", map[string]any{"phase": string(name)})}, nil
	})
}

// Abandon is a one-way transition out of any non-terminal state. No
// further mutation is permitted afterwards.
func (s *WorkflowService) Abandon(id string) (*models.WorkflowInstance, error) {
	for attempt := 0; ; attempt++ {
		inst, err := s.store.Load(id)
		if err != nil {
			return nil, err
		}
		if inst.Terminal() {
			return nil, errors.Errorf("instance %q is already %s", id, inst.Status)
		}
		inst.Status = models.AbandonedInstanceStatus
		inst.UpdatedAt = s.now()
		v, err := s.store.Save(inst, inst.Version, []models.Event{s.event(id, "workflow.abandoned", nil)})
		if err == nil {
			inst.Version = v
			s.logger.Infof("Abandoned workflow %q", id)
			return inst, nil
		}
		if !retryableConflict(err, attempt) {
			return nil, err
		}
	}
}

// GetWorkflow fetches an instance with all phases, sprints and contracts.
func (s *WorkflowService) GetWorkflow(id string) (*models.WorkflowInstance, error) {
	return s.store.Load(id)
}

// ListWorkflows returns summaries of all persisted instances.
func (s *WorkflowService) ListWorkflows() ([]models.WorkflowInstance, error) {
	return s.store.List()
}

// Events returns the transition journal for an instance.
func (s *WorkflowService) Events(id string) ([]models.Event, error) {
	return s.store.Events(id)
}

// PlanResume loads the instance and computes its resume plan.
func (s *WorkflowService) PlanResume(id string) (models.ResumePlan, error) {
	inst, err := s.store.Load(id)
	if err != nil {
		return models.ResumePlan{}, err
	}
	return s.resumer.PlanResume(inst), nil
}

// update runs a load-apply-save cycle, retrying on version conflicts
// with a fresh read. Conflicts are never surfaced to the caller unless
// the retry budget is exhausted.
func (s *WorkflowService) update(id string, apply func(inst *models.WorkflowInstance) ([]models.Event, error)) (*models.WorkflowInstance, error) {
	for attempt := 0; ; attempt++ {
		inst, err := s.store.Load(id)
		if err != nil {
			return nil, err
		}
		if inst.Terminal() {
			return nil, errors.Errorf("instance %q is %s; no further mutation permitted", id, inst.Status)
		}
		evts, err := apply(inst)
		if err != nil {
			return nil, err
		}
		inst.UpdatedAt = s.now()
		v, err := s.store.Save(inst, inst.Version, evts)
		if err == nil {
			inst.Version = v
			return inst, nil
		}
		if !retryableConflict(err, attempt) {
			return nil, err
		}
		s.logger.Infof("Version conflict on instance %q, retrying (attempt %d)", id, attempt+1)
	}
}

func retryableConflict(err error, attempt int) bool {
	var conflict *storage.ConflictError
	return errors.As(err, &conflict) && attempt < maxSaveAttempts-1
}

func (s *WorkflowService) event(instanceID, typ string, payload map[string]any) models.Event {
	return models.Event{
		ID:         uuid.NewString(),
		TS:         s.now(),
		InstanceID: instanceID,
		Type:       typ,
		Payload:    payload,
	}
}

func layerCompleted(inst *models.WorkflowInstance, layer int) bool {
	for i := range inst.Sprints {
		if inst.Sprints[i].LayerIndex == layer && inst.Sprints[i].Status != models.CompletedSprintStatus {
			return false
		}
	}
	return true
}

func allSprintsCompleted(inst *models.WorkflowInstance) bool {
	if len(inst.Sprints) == 0 {
		return false
	}
	for i := range inst.Sprints {
		if inst.Sprints[i].Status != models.CompletedSprintStatus {
			return false
		}
	}
	return true
}
