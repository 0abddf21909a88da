package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/events"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/storage"
)

// SQLiteStore implements storage.Store on an embedded SQLite database.
// The whole instance document is rewritten inside one transaction per
// save; the version check is a guarded UPDATE on the instances row, so
// a concurrent writer makes the save fail with *storage.ConflictError
// and nothing partial is ever visible.
type SQLiteStore struct {
	db *sqlx.DB
	ev events.Writer
}

// InitStore opens (creating if needed) the database at path, applies
// pending migrations and returns a ready store.
func InitStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create db directory %s", dir)
		}
	}
	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if err := Migrate(path); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type instanceRow struct {
	ID           string `db:"id"`
	Kind         string `db:"kind"`
	Status       string `db:"status"`
	CurrentPhase string `db:"current_phase"`
	Version      int64  `db:"version"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

type phaseRow struct {
	InstanceID     string         `db:"instance_id"`
	Position       int            `db:"position"`
	Name           string         `db:"name"`
	Status         string         `db:"status"`
	GateKind       sql.NullString `db:"gate_kind"`
	GateStatus     sql.NullString `db:"gate_status"`
	GateApprovedAt sql.NullString `db:"gate_approved_at"`
	StartedAt      sql.NullString `db:"started_at"`
	CompletedAt    sql.NullString `db:"completed_at"`
}

type sprintRow struct {
	InstanceID        string         `db:"instance_id"`
	ID                string         `db:"id"`
	Status            string         `db:"status"`
	LayerIndex        int            `db:"layer_index"`
	EstimatedHours    float64        `db:"estimated_hours"`
	Dependencies      string         `db:"dependencies"`
	ContractsProduced string         `db:"contracts_produced"`
	ContractsConsumed string         `db:"contracts_consumed"`
	StartedAt         sql.NullString `db:"started_at"`
	CompletedAt       sql.NullString `db:"completed_at"`
}

type contractRow struct {
	InstanceID        string         `db:"instance_id"`
	ID                string         `db:"id"`
	ProducingSprintID string         `db:"producing_sprint_id"`
	LockedAt          sql.NullString `db:"locked_at"`
}

// Load retrieves the full instance document.
func (s *SQLiteStore) Load(id string) (*models.WorkflowInstance, error) {
	var ir instanceRow
	err := s.db.Get(&ir, "SELECT * FROM instances WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load instance %q", id)
	}
	inst, err := decodeInstance(ir)
	if err != nil {
		return nil, err
	}

	var prs []phaseRow
	if err := s.db.Select(&prs, "SELECT * FROM phases WHERE instance_id = ? ORDER BY position", id); err != nil {
		return nil, errors.Wrapf(err, "load phases of %q", id)
	}
	for _, pr := range prs {
		ph, err := decodePhase(pr)
		if err != nil {
			return nil, err
		}
		inst.Phases = append(inst.Phases, ph)
	}

	var srs []sprintRow
	if err := s.db.Select(&srs, "SELECT * FROM sprints WHERE instance_id = ? ORDER BY id", id); err != nil {
		return nil, errors.Wrapf(err, "load sprints of %q", id)
	}
	for _, sr := range srs {
		sp, err := decodeSprint(sr)
		if err != nil {
			return nil, err
		}
		inst.Sprints = append(inst.Sprints, sp)
	}

	var crs []contractRow
	if err := s.db.Select(&crs, "SELECT * FROM contracts WHERE instance_id = ? ORDER BY id", id); err != nil {
		return nil, errors.Wrapf(err, "load contracts of %q", id)
	}
	for _, cr := range crs {
		c, err := decodeContract(cr)
		if err != nil {
			return nil, err
		}
		inst.Contracts = append(inst.Contracts, c)
	}

	return inst, nil
}

// Save writes the document atomically under the optimistic version
// check. expectedVersion 0 creates the instance.
func (s *SQLiteStore) Save(inst *models.WorkflowInstance, expectedVersion int64, evts []models.Event) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, errors.Wrap(err, "begin save transaction")
	}
	newVersion, err := s.saveInTx(tx, inst, expectedVersion, evts)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit save transaction")
	}
	return newVersion, nil
}

func (s *SQLiteStore) saveInTx(tx *sqlx.Tx, inst *models.WorkflowInstance, expectedVersion int64, evts []models.Event) (int64, error) {
	newVersion := expectedVersion + 1

	if expectedVersion == 0 {
		var stored int64
		err := tx.Get(&stored, "SELECT version FROM instances WHERE id = ?", inst.ID)
		if err == nil {
			return 0, &storage.ConflictError{InstanceID: inst.ID, Expected: 0, Actual: stored}
		}
		if err != sql.ErrNoRows {
			return 0, errors.Wrapf(err, "check instance %q", inst.ID)
		}
		_, err = tx.Exec(
			`INSERT INTO instances (id, kind, status, current_phase, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.Kind, inst.Status, inst.CurrentPhase, newVersion, encodeTime(inst.CreatedAt), encodeTime(inst.UpdatedAt),
		)
		if err != nil {
			return 0, errors.Wrapf(err, "insert instance %q", inst.ID)
		}
	} else {
		res, err := tx.Exec(
			`UPDATE instances SET kind = ?, status = ?, current_phase = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
			inst.Kind, inst.Status, inst.CurrentPhase, newVersion, encodeTime(inst.UpdatedAt), inst.ID, expectedVersion,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "update instance %q", inst.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "rows affected")
		}
		if n == 0 {
			var stored int64
			err := tx.Get(&stored, "SELECT version FROM instances WHERE id = ?", inst.ID)
			if err == sql.ErrNoRows {
				return 0, storage.ErrNotFound
			}
			if err != nil {
				return 0, errors.Wrapf(err, "check instance %q", inst.ID)
			}
			return 0, &storage.ConflictError{InstanceID: inst.ID, Expected: expectedVersion, Actual: stored}
		}
	}

	for _, table := range []string{"phases", "sprints", "contracts"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE instance_id = ?", inst.ID); err != nil {
			return 0, errors.Wrapf(err, "clear %s of %q", table, inst.ID)
		}
	}

	for i, ph := range inst.Phases {
		pr := encodePhase(inst.ID, i, ph)
		_, err := tx.Exec(
			`INSERT INTO phases (instance_id, position, name, status, gate_kind, gate_status, gate_approved_at, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pr.InstanceID, pr.Position, pr.Name, pr.Status, pr.GateKind, pr.GateStatus, pr.GateApprovedAt, pr.StartedAt, pr.CompletedAt,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "insert phase %q of %q", ph.Name, inst.ID)
		}
	}

	for _, sp := range inst.Sprints {
		sr, err := encodeSprint(inst.ID, sp)
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			`INSERT INTO sprints (instance_id, id, status, layer_index, estimated_hours, dependencies, contracts_produced, contracts_consumed, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sr.InstanceID, sr.ID, sr.Status, sr.LayerIndex, sr.EstimatedHours, sr.Dependencies, sr.ContractsProduced, sr.ContractsConsumed, sr.StartedAt, sr.CompletedAt,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "insert sprint %q of %q", sp.ID, inst.ID)
		}
	}

	for _, c := range inst.Contracts {
		_, err := tx.Exec(
			`INSERT INTO contracts (instance_id, id, producing_sprint_id, locked_at) VALUES (?, ?, ?, ?)`,
			inst.ID, c.ID, c.ProducingSprintID, encodeNullTime(c.LockedAt),
		)
		if err != nil {
			return 0, errors.Wrapf(err, "insert contract %q of %q", c.ID, inst.ID)
		}
	}

	for _, evt := range evts {
		if err := s.ev.Append(tx, evt); err != nil {
			return 0, err
		}
	}

	return newVersion, nil
}

// List returns instance summaries (no phases, sprints or contracts).
func (s *SQLiteStore) List() ([]models.WorkflowInstance, error) {
	var rows []instanceRow
	if err := s.db.Select(&rows, "SELECT * FROM instances ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	out := make([]models.WorkflowInstance, 0, len(rows))
	for _, ir := range rows {
		inst, err := decodeInstance(ir)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, nil
}

// Events returns the journal of an instance in append order.
func (s *SQLiteStore) Events(instanceID string) ([]models.Event, error) {
	var rows []events.Row
	if err := s.db.Select(&rows, "SELECT * FROM events WHERE instance_id = ? ORDER BY ts, id", instanceID); err != nil {
		return nil, errors.Wrapf(err, "load events of %q", instanceID)
	}
	out := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		evt, err := r.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, errors.Wrapf(err, "parse timestamp %q", s)
}

func decodeNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := decodeTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeInstance(ir instanceRow) (*models.WorkflowInstance, error) {
	created, err := decodeTime(ir.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := decodeTime(ir.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &models.WorkflowInstance{
		ID:           ir.ID,
		Kind:         models.WorkflowKind(ir.Kind),
		Status:       models.InstanceStatus(ir.Status),
		CurrentPhase: models.PhaseName(ir.CurrentPhase),
		Version:      ir.Version,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func encodePhase(instanceID string, position int, ph models.Phase) phaseRow {
	pr := phaseRow{
		InstanceID:  instanceID,
		Position:    position,
		Name:        string(ph.Name),
		Status:      string(ph.Status),
		StartedAt:   encodeNullTime(ph.StartedAt),
		CompletedAt: encodeNullTime(ph.CompletedAt),
	}
	if ph.Gate != nil {
		pr.GateKind = sql.NullString{String: string(ph.Gate.Kind), Valid: true}
		pr.GateStatus = sql.NullString{String: string(ph.Gate.Status), Valid: true}
		pr.GateApprovedAt = encodeNullTime(ph.Gate.ApprovedAt)
	}
	return pr
}

func decodePhase(pr phaseRow) (models.Phase, error) {
	started, err := decodeNullTime(pr.StartedAt)
	if err != nil {
		return models.Phase{}, err
	}
	completed, err := decodeNullTime(pr.CompletedAt)
	if err != nil {
		return models.Phase{}, err
	}
	ph := models.Phase{
		Name:        models.PhaseName(pr.Name),
		Status:      models.PhaseStatus(pr.Status),
		StartedAt:   started,
		CompletedAt: completed,
	}
	if pr.GateKind.Valid {
		approved, err := decodeNullTime(pr.GateApprovedAt)
		if err != nil {
			return models.Phase{}, err
		}
		ph.Gate = &models.Gate{
			Kind:       models.GateKind(pr.GateKind.String),
			Status:     models.GateStatus(pr.GateStatus.String),
			ApprovedAt: approved,
		}
	}
	return ph, nil
}

func encodeSprint(instanceID string, sp models.Sprint) (sprintRow, error) {
	deps, err := encodeStrings(sp.Dependencies)
	if err != nil {
		return sprintRow{}, err
	}
	produced, err := encodeStrings(sp.ContractsProduced)
	if err != nil {
		return sprintRow{}, err
	}
	consumed, err := encodeStrings(sp.ContractsConsumed)
	if err != nil {
		return sprintRow{}, err
	}
	return sprintRow{
		InstanceID:        instanceID,
		ID:                sp.ID,
		Status:            string(sp.Status),
		LayerIndex:        sp.LayerIndex,
		EstimatedHours:    sp.EstimatedHours,
		Dependencies:      deps,
		ContractsProduced: produced,
		ContractsConsumed: consumed,
		StartedAt:         encodeNullTime(sp.StartedAt),
		CompletedAt:       encodeNullTime(sp.CompletedAt),
	}, nil
}

func decodeSprint(sr sprintRow) (models.Sprint, error) {
	deps, err := decodeStrings(sr.Dependencies)
	if err != nil {
		return models.Sprint{}, err
	}
	produced, err := decodeStrings(sr.ContractsProduced)
	if err != nil {
		return models.Sprint{}, err
	}
	consumed, err := decodeStrings(sr.ContractsConsumed)
	if err != nil {
		return models.Sprint{}, err
	}
	started, err := decodeNullTime(sr.StartedAt)
	if err != nil {
		return models.Sprint{}, err
	}
	completed, err := decodeNullTime(sr.CompletedAt)
	if err != nil {
		return models.Sprint{}, err
	}
	return models.Sprint{
		ID:                sr.ID,
		Status:            models.SprintStatus(sr.Status),
		Dependencies:      deps,
		EstimatedHours:    sr.EstimatedHours,
		LayerIndex:        sr.LayerIndex,
		ContractsProduced: produced,
		ContractsConsumed: consumed,
		StartedAt:         started,
		CompletedAt:       completed,
	}, nil
}

func decodeContract(cr contractRow) (models.Contract, error) {
	locked, err := decodeNullTime(cr.LockedAt)
	if err != nil {
		return models.Contract{}, err
	}
	return models.Contract{
		ID:                cr.ID,
		ProducingSprintID: cr.ProducingSprintID,
		LockedAt:          locked,
	}, nil
}

func encodeStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	data, err := json.Marshal(ss)
	return string(data), errors.Wrap(err, "encode string list")
}

func decodeStrings(s string) ([]string, error) {
	var ss []string
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return nil, errors.Wrap(err, "decode string list")
	}
	if len(ss) == 0 {
		return nil, nil
	}
	return ss, nil
}
