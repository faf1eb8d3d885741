package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railgate.app/api/handlers"
	"railgate.app/api/internal/config"
	"railgate.app/api/internal/testutil"
	"railgate.app/api/storage"
)

// Integration tests run complete workflows against the SQLite store.

type app struct {
	server *handlers.Server
	mailer *testutil.RecordingMailer
}

func newApp(t *testing.T, mutate ...func(*config.Config)) *app {
	t.Helper()

	cfg := testutil.TestConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "railgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	deps := buildDeps(cfg, store)
	mailer := &testutil.RecordingMailer{}
	deps.Mailer = mailer

	return &app{server: handlers.NewHttpServer(deps), mailer: mailer}
}

func (a *app) do(t *testing.T, method, target string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case []byte:
		buf = bytes.NewBuffer(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.server.ServeHTTP(w, req)
	return w
}

var adminHeader = map[string]string{"X-Admin-Key": testutil.TestAdminKey}

// tokenFromMail pulls the token out of the dashboard link in a magic link mail.
func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	for _, field := range strings.Fields(body) {
		if !strings.Contains(field, "/dashboard?") {
			continue
		}
		u, err := url.Parse(field)
		require.NoError(t, err)
		if token := u.Query().Get("token"); token != "" {
			return token
		}
	}
	t.Fatalf("No dashboard link in mail body %q", body)
	return ""
}

func TestFullWorkflow_WebhookToDashboardToCancellation(t *testing.T) {
	a := newApp(t)

	// Step 1: Stripe reports a paid checkout.
	payload, sig := testutil.SignedWebhook(t, string(stripe.EventTypeCheckoutSessionCompleted),
		testutil.CheckoutSessionObject("Customer@Example.com", "cs_live_1", "cus_42", "sub_42", "paid"))
	w := a.do(t, http.MethodPost, "/stripe/webhook", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Step 2: the buyer receives a magic link.
	sent := a.mailer.SentTo("customer@example.com")
	require.Len(t, sent, 1)
	token := tokenFromMail(t, sent[0].Body)

	// Step 3: the link opens the dashboard.
	w = a.do(t, http.MethodGet, "/dashboard?token="+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash handlers.DashboardResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dash))
	assert.Equal(t, "customer@example.com", dash.Email)

	// Step 4: an intake is submitted and shows up for the admin.
	w = a.do(t, http.MethodPost, "/intake?token="+token, map[string]string{
		"role": "founder", "context": "three venues", "narrative": "long story",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/admin/intakes", nil, adminHeader)
	require.Equal(t, http.StatusOK, w.Code)
	var intakes struct {
		Entries []struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&intakes))
	require.Len(t, intakes.Entries, 1)
	assert.Equal(t, "customer@example.com", intakes.Entries[0].Email)

	// Step 5: the subscription ends and access stops.
	payload, sig = testutil.SignedWebhook(t, string(stripe.EventTypeCustomerSubscriptionDeleted),
		testutil.SubscriptionObject("sub_42", "cus_42", "canceled"))
	w = a.do(t, http.MethodPost, "/stripe/webhook", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/dashboard?token="+token, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFullWorkflow_ResubscribeRestoresAccess(t *testing.T) {
	a := newApp(t)
	hook := func(eventType string, object map[string]interface{}) {
		payload, sig := testutil.SignedWebhook(t, eventType, object)
		w := a.do(t, http.MethodPost, "/stripe/webhook", payload, map[string]string{"Stripe-Signature": sig})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	hook(string(stripe.EventTypeCheckoutSessionCompleted),
		testutil.CheckoutSessionObject("back@example.com", "cs_1", "cus_1", "sub_1", "paid"))
	first := tokenFromMail(t, a.mailer.SentTo("back@example.com")[0].Body)

	hook(string(stripe.EventTypeCustomerSubscriptionDeleted), testutil.SubscriptionObject("sub_1", "cus_1", "canceled"))
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/dashboard?token="+first, nil, nil).Code)

	hook(string(stripe.EventTypeCheckoutSessionCompleted),
		testutil.CheckoutSessionObject("back@example.com", "cs_2", "cus_1", "sub_2", "paid"))

	// Earlier links work again once the grant is active.
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/dashboard?token="+first, nil, nil).Code)

	// A late event for the old subscription leaves the new one alone.
	hook(string(stripe.EventTypeCustomerSubscriptionDeleted), testutil.SubscriptionObject("sub_1", "cus_1", "canceled"))
	hook(string(stripe.EventTypeCustomerSubscriptionUpdated), testutil.SubscriptionObject("sub_1", "cus_1", "canceled"))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/dashboard?token="+first, nil, nil).Code)
	assert.Len(t, a.mailer.SentTo("back@example.com"), 2, "one magic link per purchase")

	w := a.do(t, http.MethodGet, "/admin/grants", nil, adminHeader)
	var grants struct {
		Entries []struct {
			Email           string `json:"email"`
			Status          string `json:"status"`
			SubscriptionRef string `json:"subscription_ref"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&grants))
	require.Len(t, grants.Entries, 1)
	assert.Equal(t, "active", grants.Entries[0].Status)
	assert.Equal(t, "sub_2", grants.Entries[0].SubscriptionRef)
}

func TestFullWorkflow_ContributorReview(t *testing.T) {
	a := newApp(t)

	w := a.do(t, http.MethodPost, "/contributor", map[string]string{
		"name":      "Ops Person",
		"email":     "ops@example.com",
		"track":     "builder_operator",
		"comp_plan": "residual",
		"authority": "owner_exec",
		"assets":    "two trucks",
		"website":   "https://ops.example",
		"company":   "Ops LLC",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created handlers.ContributorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	w = a.do(t, http.MethodPatch, "/admin/contributors/"+created.ID+"/status", map[string]string{"status": "reviewed"}, adminHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/admin/contributors/"+created.ID, nil, adminHeader)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Status string `json:"status"`
		Score  int    `json:"score"`
		Rail   string `json:"rail"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "reviewed", got.Status)
	assert.Equal(t, created.Score, got.Score)
	assert.Equal(t, created.RailAssigned, got.Rail)

	// The owner was told about the submission.
	assert.Len(t, a.mailer.SentTo(testutil.TestConfig().NotifyEmail), 1)
}

func TestBuildDeps(t *testing.T) {
	store := storage.NewMemoryStorage()

	cfg := testutil.TestConfig()
	deps := buildDeps(cfg, store)
	assert.NotNil(t, deps.Checkout, "checkout should be wired when Stripe is configured")
	assert.Nil(t, deps.Limiter, "rate limiting is off when the per-minute rate is zero")
	assert.NotNil(t, deps.Gate)
	assert.Equal(t, cfg.ScoreCeiling, deps.Scorer.Ceiling)

	cfg = testutil.TestConfig()
	cfg.StripeSecret = ""
	cfg.RateLimitPerMinute = 10
	cfg.RateLimitBurst = 2
	deps = buildDeps(cfg, store)
	assert.Nil(t, deps.Checkout)
	assert.NotNil(t, deps.Limiter)
}
