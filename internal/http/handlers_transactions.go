package http

import (
	"net/http"
	"slices"

	"householdledger/internal/core"
	"householdledger/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := s.parsePeriod(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var txs []core.Transaction
	if p.monthScoped() {
		txs, err = s.deps.Ledger.Month(r.Context(), p.Year, p.Month)
	} else {
		txs, err = s.deps.Ledger.Year(r.Context(), p.Year)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Categories.NormalizeTransactions(txs))
}

// decodeTransaction reads and validates a transaction body and normalizes
// its category.
func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, bool) {
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return tx, false
	}
	if err := tx.Validate(); err != nil {
		fail(w, r, err)
		return tx, false
	}
	tx.Category = s.deps.Categories.Normalize(tx.Category)
	return tx, true
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, valid := s.decodeTransaction(w, r)
	if !valid {
		return
	}
	id, err := s.deps.Ledger.Create(r.Context(), tx)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: id})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, valid := s.decodeTransaction(w, r)
	if !valid {
		return
	}
	found, err := s.deps.Ledger.Update(r.Context(), tx)
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

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	found, err := s.deps.Ledger.Delete(r.Context(), id)
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

type duplicateID struct {
	ID     int64    `json:"id"`
	Shards []string `json:"shards"`
}

// handleDuplicates lists ids held by more than one record.
func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	dups, err := s.deps.Ledger.FindDuplicates(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	out := make([]duplicateID, 0, len(dups))
	for id, keys := range dups {
		d := duplicateID{ID: id}
		for _, k := range keys {
			d.Shards = append(d.Shards, k.String())
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b duplicateID) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if len(out) > 0 {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Duplicate transaction ids found", "count", len(out))
	}
	writeJSON(w, http.StatusOK, out)
}
