package http

import (
	"net/http"
	"strings"

	"finboard/internal/auth"
	"finboard/internal/core"
	"finboard/internal/log"
)

// principal returns the authenticated caller; auth.Middleware guarantees one
// on every route that uses it.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, core.ErrUnauthorized)
	}
	return p, ok
}

func (s *Server) decodeDraft(w http.ResponseWriter, r *http.Request) (core.ExpenseDraft, error) {
	var req expenseRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		return core.ExpenseDraft{}, err
	}
	req.Description = s.parser.Sanitize(req.Description)
	req.Category = s.parser.Sanitize(req.Category)
	return req.draft(), nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r.URL.Query(), s.defaultPageSize, s.maxPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.expenses.ListExpenses(r.Context(), p.UserID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	draft, err := s.decodeDraft(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.CreateExpense(r.Context(), p.UserID, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.FieldUserID, p.UserID,
		log.FieldExpenseID, e.ID,
		log.FieldCategory, e.Category)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, core.ErrNotFound)
		return
	}
	draft, err := s.decodeDraft(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.UpdateExpense(r.Context(), core.Expense{ID: id, OwnerID: p.UserID}.WithDraft(draft))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, core.ErrNotFound)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), p.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	cats, err := s.expenses.Categories(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, cats)
}
