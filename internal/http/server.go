// Package http exposes a read-only view of workflow state. All writes
// go through the CLI/service path; this server never mutates.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/log"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/service"
	"github.com/marcusgoll/Spec-Flow-sub014/pkg/storage"
)

// NewRouter builds the read-only API router.
func NewRouter(svc *service.WorkflowService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/instances", listInstancesHandler(svc))
	r.Get("/instances/{id}", getInstanceHandler(svc))
	r.Get("/instances/{id}/resume", resumeHandler(svc))
	r.Get("/instances/{id}/events", eventsHandler(svc))

	return r
}

// StartServer serves the read-only API on addr.
func StartServer(addr string, store storage.Store) error {
	svc := service.NewWorkflowService(store, log.GetLogger())
	log.GetLogger().Infof("Starting specflow status server on %s", addr)
	return http.ListenAndServe(addr, NewRouter(svc))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func listInstancesHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances, err := svc.ListWorkflows()
		if err != nil {
			log.GetLogger().Errorf("Failed to list instances: %v", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, instances)
	}
}

func getInstanceHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := svc.GetWorkflow(chi.URLParam(r, "id"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	}
}

func resumeHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := svc.PlanResume(chi.URLParam(r, "id"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

func eventsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evts, err := svc.Events(chi.URLParam(r, "id"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, evts)
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	log.GetLogger().Errorf("Lookup failed: %v", err)
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
