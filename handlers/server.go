package handlers

import (
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"railgate.app/api/billing"
	"railgate.app/api/internal/access"
	"railgate.app/api/internal/config"
	"railgate.app/api/internal/email"
	"railgate.app/api/internal/ratelimit"
	"railgate.app/api/internal/scoring"
	"railgate.app/api/storage"
)

// Deps are the collaborators a Server is built from. Checkout and Limiter may
// be nil; checkout routes then answer 503 and public forms are unthrottled.
type Deps struct {
	Config   *config.Config
	Storage  storage.Storage
	Gate     *access.Gate
	Scorer   *scoring.Scorer
	Checkout billing.Checkout
	Mailer   email.Mailer
	Limiter  ratelimit.RateLimit
	Version  string
}

type Server struct {
	Mux     *chi.Mux
	Storage storage.Storage

	cfg      *config.Config
	gate     *access.Gate
	scorer   *scoring.Scorer
	checkout billing.Checkout
	mailer   email.Mailer
	limiter  ratelimit.RateLimit
	validate *validator.Validate
	version  string
	started  time.Time
}

func NewHttpServer(deps Deps) *Server {
	s := &Server{
		Mux:      chi.NewRouter(),
		Storage:  deps.Storage,
		cfg:      deps.Config,
		gate:     deps.Gate,
		scorer:   deps.Scorer,
		checkout: deps.Checkout,
		mailer:   deps.Mailer,
		limiter:  deps.Limiter,
		validate: newValidator(),
		version:  deps.Version,
		started:  time.Now(),
	}
	if s.scorer == nil {
		s.scorer = scoring.NewScorer(deps.Config.ScoreCeiling)
	}
	if s.mailer == nil {
		s.mailer = email.Disabled
	}

	r := s.Mux
	r.Use(middleware.RequestID)
	if deps.Config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	// Sentry sits inside Recoverer so it sees the panic, reports it and
	// re-panics for Recoverer to answer 500.
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	// CORS sits on the root router so preflight requests are answered before
	// routing rejects the OPTIONS method.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", s.Health)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/lead", s.SubmitLead)
		r.Post("/partner", s.SubmitPartner)
		r.Post("/contributor", s.SubmitContributor)
	})

	r.Get("/checkout", s.Checkout)
	r.Get("/success", s.Success)
	r.Get("/cancel", s.Cancel)
	r.Post("/stripe/webhook", s.Stripe)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAccess)

		r.Get("/dashboard", s.Dashboard)
		r.Get("/intake-form", s.IntakeForm)
		r.Post("/intake", s.SubmitIntake)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminOnly)

		r.Get("/leads", s.ListLeads)
		r.Get("/partners", s.ListPartners)
		r.Get("/contributors", s.ListContributors)
		r.Get("/contributors/{id}", s.GetContributor)
		r.Patch("/contributors/{id}/status", s.UpdateContributorStatus)
		r.Get("/intakes", s.ListIntakes)
		r.Get("/grants", s.ListGrants)
	})

	if deps.Config.DevMode {
		r.With(s.adminOnly).Post("/dev/token", s.DevToken)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Mux.ServeHTTP(w, r)
}
