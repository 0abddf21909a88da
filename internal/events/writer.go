package events

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// Writer appends journal rows inside a caller-supplied transaction, so
// an event is durable exactly when the state transition it describes is.
type Writer struct{}

func (Writer) Append(tx *sqlx.Tx, evt models.Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	_, err = tx.Exec(
		`INSERT INTO events (id, ts, instance_id, type, payload_json) VALUES (?, ?, ?, ?, ?)`,
		evt.ID, evt.TS.UTC().Format(time.RFC3339Nano), evt.InstanceID, evt.Type, string(data),
	)
	return errors.Wrap(err, "append event")
}

// Row is one journal row as stored.
type Row struct {
	ID          string `db:"id"`
	TS          string `db:"ts"`
	InstanceID  string `db:"instance_id"`
	Type        string `db:"type"`
	PayloadJSON string `db:"payload_json"`
}

// Decode converts a stored row back into an event.
func (r Row) Decode() (models.Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.TS)
	if err != nil {
		return models.Event{}, errors.Wrapf(err, "parse event %s timestamp", r.ID)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.PayloadJSON), &payload); err != nil {
		return models.Event{}, errors.Wrapf(err, "decode event %s payload", r.ID)
	}
	return models.Event{
		ID:         r.ID,
		TS:         ts,
		InstanceID: r.InstanceID,
		Type:       r.Type,
		Payload:    payload,
	}, nil
}
