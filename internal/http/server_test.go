package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/marcusgoll/Spec-Flow-sub014/internal/http"
	"github.com/marcusgoll/Spec-Flow-sub014/internal/log"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/service"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/storage"
)

func setupServer(t *testing.T) (*service.WorkflowService, *httptest.Server) {
	t.Helper()
	svc := service.NewWorkflowService(storage.NewMockStore(), log.GetLogger())
	ts := httptest.NewServer(apihttp.NewRouter(svc))
	t.Cleanup(ts.Close)
	return svc, ts
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := setupServer(t)
	var body map[string]string
	status := get(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestListInstances(t *testing.T) {
	svc, ts := setupServer(t)
	_, err := svc.InitWorkflow("002-billing", models.FeatureWorkflowKind, nil)
	require.NoError(t, err)
	_, err = svc.InitWorkflow("001-user-auth", models.EpicWorkflowKind, nil)
	require.NoError(t, err)

	var got []models.WorkflowInstance
	status := get(t, ts.URL+"/instances", &got)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, got, 2)
	assert.Equal(t, "001-user-auth", got[0].ID)
	assert.Equal(t, "002-billing", got[1].ID)
}

func TestGetInstance(t *testing.T) {
	svc, ts := setupServer(t)
	_, err := svc.InitWorkflow("demo", models.FeatureWorkflowKind, nil)
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		var got models.WorkflowInstance
		status := get(t, ts.URL+"/instances/demo", &got)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "demo", got.ID)
		assert.Len(t, got.Phases, 9)
		assert.Equal(t, models.SpecificationPhase, got.CurrentPhase)
	})

	t.Run("NotFound", func(t *testing.T) {
		status := get(t, ts.URL+"/instances/ghost", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestResumeEndpoint(t *testing.T) {
	svc, ts := setupServer(t)
	_, err := svc.InitWorkflow("demo", models.FeatureWorkflowKind, nil)
	require.NoError(t, err)
	_, err = svc.CompletePhase("demo", models.SpecificationPhase)
	require.NoError(t, err)

	var plan models.ResumePlan
	status := get(t, ts.URL+"/instances/demo/resume", &plan)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, plan.Done)
	assert.Equal(t, models.ClarificationPhase, plan.Phase)
	assert.Equal(t, -1, plan.LayerIndex)

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/instances/ghost/resume", nil))
}

func TestEventsEndpoint(t *testing.T) {
	svc, ts := setupServer(t)
	_, err := svc.InitWorkflow("demo", models.FeatureWorkflowKind, nil)
	require.NoError(t, err)

	var evts []models.Event
	status := get(t, ts.URL+"/instances/demo/events", &evts)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, evts, 1)
	assert.Equal(t, "workflow.initiated", evts[0].Type)
}
