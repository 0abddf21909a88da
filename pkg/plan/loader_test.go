package plan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/plan"
)

const sampleManifest = `
workflow: 001-user-auth
gates:
  planning: manual
  validation: automatic
sprints:
  - id: S01
    estimated_hours: 8
    produces: [api-v1]
  - id: S02
    depends_on: [S01]
    consumes: [api-v1]
`

func TestParse(t *testing.T) {
	t.Run("FullManifest", func(t *testing.T) {
		m, err := plan.Parse([]byte(sampleManifest))
		require.NoError(t, err)
		assert.Equal(t, "001-user-auth", m.Workflow)
		require.Len(t, m.Sprints, 2)
		assert.Equal(t, "S01", m.Sprints[0].ID)
		assert.Equal(t, 8.0, m.Sprints[0].EstimatedHours)
		assert.Equal(t, []string{"api-v1"}, m.Sprints[0].Produces)
		assert.Equal(t, []string{"S01"}, m.Sprints[1].DependsOn)
		assert.Equal(t, []string{"api-v1"}, m.Sprints[1].Consumes)
	})

	t.Run("UnknownFieldRejected", func(t *testing.T) {
		_, err := plan.Parse([]byte("sprints:\n  - id: S01\n    estimated_hrs: 3\n"))
		assert.Error(t, err)
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		_, err := plan.Parse([]byte(""))
		assert.Error(t, err)
	})

	t.Run("NoSprints", func(t *testing.T) {
		_, err := plan.Parse([]byte("workflow: demo\n"))
		assert.Error(t, err)
	})

	t.Run("MissingSprintID", func(t *testing.T) {
		_, err := plan.Parse([]byte("sprints:\n  - depends_on: [S01]\n"))
		assert.Error(t, err)
	})

	t.Run("NegativeHours", func(t *testing.T) {
		_, err := plan.Parse([]byte("sprints:\n  - id: S01\n    estimated_hours: -2\n"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "S01")
	})

	t.Run("UnknownGatePhase", func(t *testing.T) {
		_, err := plan.Parse([]byte("gates:\n  shipping: manual\nsprints:\n  - id: S01\n"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "shipping")
	})

	t.Run("InvalidGateKind", func(t *testing.T) {
		_, err := plan.Parse([]byte("gates:\n  planning: sometimes\nsprints:\n  - id: S01\n"))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("ReadsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))
		m, err := plan.Load(path)
		assert.NoError(t, err)
		assert.Len(t, m.Sprints, 2)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := plan.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDecls(t *testing.T) {
	m, err := plan.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	decls := m.Decls()
	require.Len(t, decls, 2)
	assert.Equal(t, models.SprintDecl{
		ID:             "S01",
		EstimatedHours: 8,
		Produces:       []string{"api-v1"},
	}, decls[0])

	gates := m.GateDecls()
	assert.Equal(t, map[models.PhaseName]models.GateKind{
		models.PlanningPhase:   models.ManualGate,
		models.ValidationPhase: models.AutomaticGate,
	}, gates)
}
