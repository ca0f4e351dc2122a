package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"aviary/internal/core"
)

const defaultMonitoringLimit = 100

func (s *Server) registerMonitoringRoutes(api *mux.Router) {
	api.HandleFunc("/daily-monitoring", s.handleListMonitoring).Methods(http.MethodGet)
	api.HandleFunc("/daily-monitoring", s.handleCreateMonitoring).Methods(http.MethodPost)
	api.HandleFunc("/daily-monitoring/{id}", s.handleDeleteMonitoring).Methods(http.MethodDelete)
}

// handleListMonitoring lists entries newest first, optionally for one incubator.
func (s *Server) handleListMonitoring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", defaultMonitoringLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.svc.Monitoring.ListEntries(r.Context(), queryString(q, "incubator_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.MonitoringEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCreateMonitoring stores an entry and returns it with the alerts the
// reading raised against the incubator's ranges.
func (s *Server) handleCreateMonitoring(w http.ResponseWriter, r *http.Request) {
	var in core.MonitoringEntry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Monitoring.CreateEntry(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Alerts == nil {
		res.Alerts = []core.Alert{}
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Monitoring.DeleteEntry(r.Context(), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
