package http

import (
	"errors"
	"net/http"
	"strings"

	"householdledger/internal/category"
)

type categoryRequest struct {
	Name      string `json:"name"`
	Attribute string `json:"attribute"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Categories.Categories())
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Attribute == "" {
		req.Attribute = string(category.Consumption)
	}
	attr, err := category.ParseAttribute(req.Attribute)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attribute")
		return
	}

	if err := s.deps.Categories.Add(r.Context(), req.Name, attr); err != nil {
		if errors.Is(err, category.ErrInvalidAttribute) {
			writeError(w, http.StatusBadRequest, "invalid attribute")
			return
		}
		if statusFor(err) >= http.StatusInternalServerError {
			fail(w, r, err)
			return
		}
		writeError(w, http.StatusConflict, "duplicate or invalid category")
		return
	}
	writeJSON(w, http.StatusCreated, ok)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	if err := s.deps.Categories.Remove(r.Context(), name); err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			fail(w, r, err)
			return
		}
		writeError(w, http.StatusConflict, "cannot remove category")
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Categories.Attributes())
}

func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	attr, err := category.ParseAttribute(req.Attribute)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attribute")
		return
	}
	if err := s.deps.Categories.SetAttribute(r.Context(), req.Name, attr); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}
