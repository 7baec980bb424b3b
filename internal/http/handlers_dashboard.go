package http

import (
	"net/http"

	"finboard/internal/core"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	year, month, err := parseYearMonth(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	dash, err := s.expenses.Dashboard(r.Context(), p.UserID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if dash.Recent == nil {
		dash.Recent = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, dash)
}
