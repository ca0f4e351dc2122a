package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) registerViewRoutes(api *mux.Router) {
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/reports/financial", s.handleFinancialReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/breeding", s.handleBreedingReport).Methods(http.MethodGet)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Notifications.Notifications(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleFinancialReport aggregates over the optional from/to range.
func (s *Server) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	f, err := queryRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.svc.Finance.Report(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBreedingReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Breeding.Report(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
