package http

import (
	"net/http"

	"householdledger/internal/core"
	"householdledger/internal/log"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Engine.Schedules().List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) decodeSchedule(w http.ResponseWriter, r *http.Request) (core.ScheduleItem, bool) {
	var item core.ScheduleItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return item, false
	}
	if err := item.Validate(); err != nil {
		fail(w, r, err)
		return item, false
	}
	return item, true
}

// handleAddSchedule stores the schedule and immediately generates whatever it
// already owes.
func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	item, valid := s.decodeSchedule(w, r)
	if !valid {
		return
	}
	item, err := s.deps.Engine.Schedules().Add(r.Context(), item)
	if err != nil {
		fail(w, r, err)
		return
	}

	// The schedule is stored either way; the next pass retries generation.
	if _, err := s.deps.Engine.GenerateDueTransactions(r.Context(), s.now()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Generation after schedule add failed",
			log.FieldScheduleID, item.ID,
			log.FieldError, err)
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: item.ID})
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	item, valid := s.decodeSchedule(w, r)
	if !valid {
		return
	}
	found, err := s.deps.Engine.Schedules().Update(r.Context(), item)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	found, err := s.deps.Engine.Schedules().Delete(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

// handleRunSchedules runs one catch-up pass and reports what it generated.
func (s *Server) handleRunSchedules(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Engine.GenerateDueTransactions(r.Context(), s.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
