package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"householdledger/internal/budget"
	"householdledger/internal/category"
	"householdledger/internal/core"
	"householdledger/internal/log"
)

var (
	errMissingYear  = errors.New("missing year")
	errInvalidYear  = errors.New("invalid year")
	errInvalidMonth = errors.New("invalid month")
	errMissingID    = errors.New("missing id")
	errInvalidID    = errors.New("invalid id")
)

type statusResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

var ok = statusResponse{Status: "ok"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps err onto a status code and writes it. Server errors are logged
// and their detail is not sent to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateID),
		errors.Is(err, category.ErrCategoryExists),
		errors.Is(err, core.ErrProtectedCategory):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, category.ErrInvalidAttribute),
		errors.Is(err, budget.ErrInvalidYear),
		errors.Is(err, errMissingYear),
		errors.Is(err, errInvalidYear),
		errors.Is(err, errInvalidMonth),
		errors.Is(err, errMissingID),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return err
	}
	return nil
}

// periodQuery reads the optional year and month query parameters. A month
// without a year uses the current year.
type periodQuery struct {
	Year     int
	Month    int
	HasYear  bool
	HasMonth bool
}

func (s *Server) parsePeriod(r *http.Request) (periodQuery, error) {
	var p periodQuery
	q := r.URL.Query()

	if v := strings.TrimSpace(q.Get("year")); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil || year <= 0 {
			return p, errInvalidYear
		}
		p.Year, p.HasYear = year, true
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			return p, errInvalidMonth
		}
		p.Month, p.HasMonth = month, true
	}

	now := s.now()
	if !p.HasYear {
		p.Year = now.Year()
	}
	if !p.HasYear && !p.HasMonth {
		p.Month = int(now.Month())
	}
	return p, nil
}

// monthScoped reports whether the query selects a single month.
func (p periodQuery) monthScoped() bool {
	return p.HasMonth || !p.HasYear
}

func parseID(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get("id"))
	if v == "" {
		return 0, errMissingID
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidID, v)
	}
	return id, nil
}
