package http

import (
	"net/http"

	"householdledger/internal/scoring"
)

// handleScore returns the game summary of a month, or of a whole year when
// only year is given.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	p, err := s.parsePeriod(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var score scoring.Score
	if p.monthScoped() {
		score, err = s.deps.Scoring.ScoreMonth(r.Context(), p.Year, p.Month)
	} else {
		score, err = s.deps.Scoring.ScoreYear(r.Context(), p.Year)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
