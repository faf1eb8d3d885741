package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"railgate.app/api/internal/access"
	"railgate.app/api/internal/config"
	"railgate.app/api/internal/ratelimit"
	"railgate.app/api/internal/testutil"
	"railgate.app/api/storage"
)

type testEnv struct {
	server   *Server
	cfg      *config.Config
	store    *storage.MemoryStorage
	gate     *access.Gate
	mailer   *testutil.RecordingMailer
	checkout *testutil.FakeCheckout
}

type envOption func(*config.Config, *Deps)

func withConfig(fn func(*config.Config)) envOption {
	return func(c *config.Config, _ *Deps) { fn(c) }
}

func withLimiter(perMinute, burst int) envOption {
	return func(_ *config.Config, d *Deps) { d.Limiter = ratelimit.New(perMinute, burst) }
}

func withoutCheckout() envOption {
	return func(_ *config.Config, d *Deps) { d.Checkout = nil }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := testutil.TestConfig()
	store := testutil.TestStorage()
	mailer := &testutil.RecordingMailer{}
	checkout := testutil.NewFakeCheckout()

	deps := Deps{
		Config:   cfg,
		Storage:  store,
		Checkout: checkout,
		Mailer:   mailer,
		Version:  "1.2.3",
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	gate := access.NewGate(store, access.Options{
		Secret:    []byte(cfg.TokenSecret),
		TTL:       cfg.TokenTTL,
		SingleUse: cfg.TokenSingleUse,
	})
	deps.Gate = gate

	return &testEnv{
		server:   NewHttpServer(deps),
		cfg:      cfg,
		store:    store,
		gate:     gate,
		mailer:   mailer,
		checkout: checkout,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.Mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(jsonRequest(t, http.MethodPost, path, body))
}

func (e *testEnv) admin(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("X-Admin-Key", testutil.TestAdminKey)
	return e.do(req)
}

func (e *testEnv) webhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return e.do(req)
}

// grantAccess activates email and returns a live token for it.
func (e *testEnv) grantAccess(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := e.gate.Activate(ctx, access.GrantEvent{Email: email}); err != nil {
		t.Fatalf("Failed to activate grant: %v", err)
	}
	token, err := e.gate.Issue(ctx, email, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}
