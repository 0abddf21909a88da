// Package plan loads sprint manifests. The manifest is the boundary to
// the external planning collaborator: the loader checks shape only
// (ids, hours, gate names); dependency semantics are validated by the
// graph builder, never here.
package plan

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// Manifest is the parsed plan document: the flat sprint list plus
// optional gate declarations per phase.
type Manifest struct {
	Workflow string            `yaml:"workflow,omitempty"`
	Gates    map[string]string `yaml:"gates,omitempty"`
	Sprints  []SprintEntry     `yaml:"sprints"`
}

// SprintEntry is one sprint declaration as written in the manifest.
type SprintEntry struct {
	ID             string   `yaml:"id"`
	DependsOn      []string `yaml:"depends_on,omitempty"`
	EstimatedHours float64  `yaml:"estimated_hours,omitempty"`
	Produces       []string `yaml:"produces,omitempty"`
	Consumes       []string `yaml:"consumes,omitempty"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes a manifest and validates its shape. Unknown fields are
// rejected so typos in plan documents fail loudly.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, errors.New("empty plan manifest")
		}
		return nil, errors.Wrap(err, "parse plan manifest")
	}
	if len(m.Sprints) == 0 {
		return nil, errors.New("plan manifest declares no sprints")
	}
	for i, sp := range m.Sprints {
		if sp.ID == "" {
			return nil, errors.Errorf("sprint entry %d has no id", i)
		}
		if sp.EstimatedHours < 0 {
			return nil, errors.Errorf("sprint %q has negative estimated_hours", sp.ID)
		}
	}
	for name, kind := range m.Gates {
		if !models.ValidPhaseName(models.PhaseName(name)) {
			return nil, errors.Errorf("gate declared for unknown phase %q", name)
		}
		if gk := models.GateKind(kind); gk != models.ManualGate && gk != models.AutomaticGate {
			return nil, errors.Errorf("invalid gate kind %q for phase %q", kind, name)
		}
	}
	return &m, nil
}

// Decls converts the manifest sprints into the validated-input shape
// the graph builder consumes.
func (m *Manifest) Decls() []models.SprintDecl {
	decls := make([]models.SprintDecl, 0, len(m.Sprints))
	for _, sp := range m.Sprints {
		decls = append(decls, models.SprintDecl{
			ID:             sp.ID,
			DependsOn:      append([]string(nil), sp.DependsOn...),
			EstimatedHours: sp.EstimatedHours,
			Produces:       append([]string(nil), sp.Produces...),
			Consumes:       append([]string(nil), sp.Consumes...),
		})
	}
	return decls
}

// GateDecls converts the manifest gate map into typed phase gates.
func (m *Manifest) GateDecls() map[models.PhaseName]models.GateKind {
	if len(m.Gates) == 0 {
		return nil
	}
	gates := make(map[models.PhaseName]models.GateKind, len(m.Gates))
	for name, kind := range m.Gates {
		gates[models.PhaseName(name)] = models.GateKind(kind)
	}
	return gates
}
