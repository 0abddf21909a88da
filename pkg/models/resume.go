package models

// ResumePlan is the minimal remaining work needed to continue an
// interrupted workflow: the first incomplete phase and, inside the
// implementation phase, the first incomplete layer with only its
// incomplete sprints. Computing a plan never mutates the instance.
type ResumePlan struct {
	InstanceID  string    `json:"instance_id"`
	Done        bool      `json:"done"`                   // True when every phase is completed
	Phase       PhaseName `json:"phase,omitempty"`        // Resume point; empty when done
	LayerIndex  int       `json:"layer_index"`            // -1 outside the implementation phase
	SprintIDs   []string  `json:"sprint_ids,omitempty"`   // Incomplete sprints of the resume layer, id order
	GatePending bool      `json:"gate_pending,omitempty"` // Resume phase is waiting on a manual gate
}
