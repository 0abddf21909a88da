package models

import "time"

// Contract is a named interface artifact (e.g., an API schema) produced
// by a sprint and consumed by sprints in later layers. Once locked it is
// immutable for the rest of the workflow; a change requires a new
// contract id.
type Contract struct {
	ID                string     `json:"id"`
	ProducingSprintID string     `json:"producing_sprint_id"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
}

// Locked reports whether the contract has been frozen.
func (c *Contract) Locked() bool {
	return c.LockedAt != nil
}
