package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"railgate.app/api/internal/logger"
	"railgate.app/api/models"
)

type DashboardResponse struct {
	Email  string            `json:"email"`
	Status string            `json:"status"`
	Links  map[string]string `json:"links"`
}

type IntakeRequest struct {
	Role      string `json:"role" validate:"required,max=200"`
	Context   string `json:"context" validate:"required,max=5000"`
	Narrative string `json:"narrative" validate:"required,max=20000"`
}

type IntakeField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

var intakeFields = []IntakeField{
	{Name: "role", Label: "Your role", Type: "text", Required: true},
	{Name: "context", Label: "What are you working on?", Type: "textarea", Required: true},
	{Name: "narrative", Label: "Tell us the story so far", Type: "textarea", Required: true},
}

func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	formToken, err := s.linkToken(r)
	if err != nil {
		s.linkTokenFailed(w, err)
		return
	}
	intakeToken, err := s.linkToken(r)
	if err != nil {
		s.linkTokenFailed(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Email:  emailFromContext(r.Context()),
		Status: models.GrantActive,
		Links: map[string]string{
			"intake_form": s.cfg.BaseURL + "/intake-form?token=" + url.QueryEscape(formToken),
			"intake":      s.cfg.BaseURL + "/intake?token=" + url.QueryEscape(intakeToken),
		},
	})
}

func (s *Server) IntakeForm(w http.ResponseWriter, r *http.Request) {
	token, err := s.linkToken(r)
	if err != nil {
		s.linkTokenFailed(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"email":  emailFromContext(r.Context()),
		"action": "/intake?token=" + url.QueryEscape(token),
		"method": http.MethodPost,
		"fields": intakeFields,
	})
}

// linkToken returns the token to embed in follow-up links. Reusable tokens
// are passed through; single-use tokens were consumed by this request, so a
// fresh one is minted for each link.
func (s *Server) linkToken(r *http.Request) (string, error) {
	if !s.gate.SingleUse() {
		return tokenFromRequest(r), nil
	}
	return s.gate.Issue(r.Context(), emailFromContext(r.Context()), s.cfg.TokenTTL)
}

func (s *Server) linkTokenFailed(w http.ResponseWriter, err error) {
	logger.Error("Failed to issue follow-up token", map[string]interface{}{
		"error": err.Error(),
	})
	writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) SubmitIntake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	intake := &models.Intake{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Email:     emailFromContext(r.Context()),
		Role:      req.Role,
		Context:   req.Context,
		Narrative: req.Narrative,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Storage.SaveIntake(r.Context(), intake); err != nil {
		logger.Error("Failed to save intake", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("Intake received", map[string]interface{}{
		"intake_id": intake.ID,
		"email":     intake.Email,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "received",
		"timestamp": intake.CreatedAt.Format(time.RFC3339),
	})
}
