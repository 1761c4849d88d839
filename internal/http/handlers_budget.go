package http

import (
	"net/http"
	"strconv"
	"strings"

	"householdledger/internal/budget"
)

type budgetRequest struct {
	Year int `json:"year"`
	budget.Snapshot
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		fail(w, r, errMissingYear)
		return
	}
	year, err := strconv.Atoi(v)
	if err != nil || year <= 0 {
		fail(w, r, errInvalidYear)
		return
	}

	snap, err := s.deps.Budgets.ForYear(r.Context(), year)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Categories.NormalizeBudget(snap))
}

// handleUpsertBudget merges the posted year into the stored budget. Fields
// absent from the body are left as they are.
func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Year <= 0 {
		fail(w, r, errInvalidYear)
		return
	}

	update := s.deps.Categories.NormalizeBudget(req.Snapshot)
	if err := s.deps.Budgets.Upsert(r.Context(), req.Year, update); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}
