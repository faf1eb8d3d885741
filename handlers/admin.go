package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"railgate.app/api/internal/access"
	"railgate.app/api/internal/logger"
	"railgate.app/api/models"
)

type listResponse[T any] struct {
	Entries []T `json:"entries"`
}

func writeList[T any](w http.ResponseWriter, r *http.Request, what string, list func() ([]T, error)) {
	entries, err := list()
	if err != nil {
		logger.Error("Failed to list "+what, map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[T]{Entries: entries})
}

func (s *Server) ListLeads(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "leads", func() ([]*models.Lead, error) { return s.Storage.ListLeads(r.Context()) })
}

func (s *Server) ListPartners(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "partners", func() ([]*models.Partner, error) { return s.Storage.ListPartners(r.Context()) })
}

func (s *Server) ListContributors(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "contributors", func() ([]*models.Contributor, error) { return s.Storage.ListContributors(r.Context()) })
}

func (s *Server) ListIntakes(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "intakes", func() ([]*models.Intake, error) { return s.Storage.ListIntakes(r.Context()) })
}

func (s *Server) ListGrants(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "grants", func() ([]*models.AccessGrant, error) { return s.Storage.ListGrants(r.Context()) })
}

func (s *Server) GetContributor(w http.ResponseWriter, r *http.Request) {
	c, err := s.Storage.GetContributor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		logger.Error("Failed to load contributor", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if c == nil {
		writeErrorResponse(w, http.StatusNotFound, "contributor not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new reviewed approved rejected"`
}

func (s *Server) UpdateContributorStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	updated, err := s.Storage.UpdateContributorStatus(r.Context(), id, req.Status)
	if err != nil {
		logger.Error("Failed to update contributor status", map[string]interface{}{
			"error":          err.Error(),
			"contributor_id": id,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !updated {
		writeErrorResponse(w, http.StatusNotFound, "contributor not found")
		return
	}

	logger.Info("Contributor status updated", map[string]interface{}{
		"contributor_id": id,
		"status":         req.Status,
	})
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

type DevTokenRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// DevToken grants access and mints a token without a payment. It is only
// routed when DEV_MODE is on.
func (s *Server) DevToken(w http.ResponseWriter, r *http.Request) {
	var req DevTokenRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	grant, err := s.gate.Activate(r.Context(), access.GrantEvent{Email: req.Email})
	if err != nil {
		logger.Error("Failed to activate dev grant", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := s.gate.Issue(r.Context(), grant.Email, s.cfg.TokenTTL)
	if err != nil {
		logger.Error("Failed to issue dev token", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Warn("Dev token issued", map[string]interface{}{
		"email": grant.Email,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"email":         grant.Email,
		"token":         token,
		"dashboard_url": s.cfg.DashboardURL(token),
	})
}
