package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"railgate.app/api/internal/email"
	"railgate.app/api/internal/logger"
	"railgate.app/api/internal/sideeffect"
	"railgate.app/api/models"
)

type LeadRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"max=50"`
	Company string `json:"company" validate:"max=200"`
	Message string `json:"message" validate:"max=5000"`
	Source  string `json:"source" validate:"max=100"`
}

type PartnerRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Company         string `json:"company" validate:"required,max=200"`
	Website         string `json:"website" validate:"omitempty,url,max=500"`
	PartnershipType string `json:"partnership_type" validate:"required,max=100"`
	Message         string `json:"message" validate:"max=5000"`
}

// ContributorRequest keeps categorical fields as free strings. Unknown values
// are scored with defaults rather than rejected.
type ContributorRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"max=50"`
	Company string `json:"company" validate:"max=200"`
	Website string `json:"website" validate:"max=500"`

	Track            string `json:"track" validate:"max=100"`
	PrimaryRole      string `json:"primary_role" validate:"max=200"`
	Region           string `json:"region" validate:"max=200"`
	CompPlan         string `json:"comp_plan" validate:"max=200"`
	Alignment        string `json:"alignment" validate:"max=200"`
	Authority        string `json:"authority" validate:"max=100"`
	Lane             string `json:"lane" validate:"max=200"`
	PositionInterest string `json:"position_interest" validate:"max=200"`

	Assets   string `json:"assets" validate:"max=5000"`
	Capacity string `json:"capacity" validate:"max=2000"`
	Message  string `json:"message" validate:"max=5000"`

	FitProblem     string `json:"fit_problem" validate:"max=2000"`
	FitCustomers   string `json:"fit_customers" validate:"max=2000"`
	FitPipeline    string `json:"fit_pipeline" validate:"max=2000"`
	FitTimeline    string `json:"fit_timeline" validate:"max=2000"`
	FitBudget      string `json:"fit_budget" validate:"max=2000"`
	FitProof       string `json:"fit_proof" validate:"max=2000"`
	FitTeam        string `json:"fit_team" validate:"max=2000"`
	FitConstraints string `json:"fit_constraints" validate:"max=2000"`
}

type ContributorResponse struct {
	Status       string `json:"status"`
	ID           string `json:"id"`
	Score        int    `json:"score"`
	RailAssigned string `json:"rail_assigned"`
}

func (s *Server) SubmitLead(w http.ResponseWriter, r *http.Request) {
	var req LeadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	lead := &models.Lead{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     req.Phone,
		Company:   req.Company,
		Message:   req.Message,
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Storage.SaveLead(r.Context(), lead); err != nil {
		logger.Error("Failed to save lead", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("Lead received", map[string]interface{}{
		"lead_id": lead.ID,
		"source":  lead.Source,
	})

	s.notifyOwner("lead", [][2]string{
		{"Name", lead.Name},
		{"Email", lead.Email},
		{"Phone", lead.Phone},
		{"Company", lead.Company},
		{"Source", lead.Source},
		{"Message", lead.Message},
	})

	writeJSON(w, http.StatusCreated, map[string]string{"status": "Lead received", "id": lead.ID})
}

func (s *Server) SubmitPartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	partner := &models.Partner{
		ID:              uuid.Must(uuid.NewRandom()).String(),
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.TrimSpace(req.Email),
		Company:         req.Company,
		Website:         req.Website,
		PartnershipType: req.PartnershipType,
		Message:         req.Message,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Storage.SavePartner(r.Context(), partner); err != nil {
		logger.Error("Failed to save partner", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("Partner inquiry received", map[string]interface{}{
		"partner_id":       partner.ID,
		"partnership_type": partner.PartnershipType,
	})

	s.notifyOwner("partner", [][2]string{
		{"Name", partner.Name},
		{"Email", partner.Email},
		{"Company", partner.Company},
		{"Website", partner.Website},
		{"Partnership type", partner.PartnershipType},
		{"Message", partner.Message},
	})

	writeJSON(w, http.StatusCreated, map[string]string{"status": "Partner inquiry received", "id": partner.ID})
}

func (s *Server) SubmitContributor(w http.ResponseWriter, r *http.Request) {
	var req ContributorRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	c := req.toContributor()
	score, rail := s.scorer.Evaluate(c)
	c.Score = score
	c.Rail = string(rail)

	if err := s.Storage.SaveContributor(r.Context(), c); err != nil {
		logger.Error("Failed to save contributor", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("Contributor scored", map[string]interface{}{
		"contributor_id": c.ID,
		"track":          c.Track,
		"score":          c.Score,
		"rail":           c.Rail,
	})

	s.notifyOwner("contributor", [][2]string{
		{"Name", c.Name},
		{"Email", c.Email},
		{"Track", c.Track},
		{"Score", strconv.Itoa(c.Score)},
		{"Rail", c.Rail},
	})

	writeJSON(w, http.StatusCreated, ContributorResponse{
		Status:       "Contributor submission received",
		ID:           c.ID,
		Score:        c.Score,
		RailAssigned: c.Rail,
	})
}

func (req ContributorRequest) toContributor() *models.Contributor {
	return &models.Contributor{
		ID:               uuid.Must(uuid.NewRandom()).String(),
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		Phone:            req.Phone,
		Company:          req.Company,
		Website:          req.Website,
		Track:            req.Track,
		PrimaryRole:      req.PrimaryRole,
		Region:           req.Region,
		CompPlan:         req.CompPlan,
		Alignment:        req.Alignment,
		Authority:        req.Authority,
		Lane:             req.Lane,
		PositionInterest: req.PositionInterest,
		Assets:           req.Assets,
		Capacity:         req.Capacity,
		Message:          req.Message,
		FitAnswers: models.FitAnswers{
			Problem:     req.FitProblem,
			Customers:   req.FitCustomers,
			Pipeline:    req.FitPipeline,
			Timeline:    req.FitTimeline,
			Budget:      req.FitBudget,
			Proof:       req.FitProof,
			Team:        req.FitTeam,
			Constraints: req.FitConstraints,
		},
		Status:    models.ContributorNew,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Server) notifyOwner(kind string, fields [][2]string) sideeffect.Result {
	to := s.cfg.NotifyEmail
	if to == "" {
		return sideeffect.Result{Name: "notify_" + kind}
	}

	subject, body := email.Notification(kind, fields)
	return sideeffect.Attempt("notify_"+kind, map[string]interface{}{"kind": kind}, func() error {
		return s.mailer.Send(to, subject, body)
	})
}
