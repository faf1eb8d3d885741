package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"railgate.app/api/internal/config"
	"railgate.app/api/internal/testutil"
	"railgate.app/api/models"
)

func TestAdmin_KeyRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"no key", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
		}, http.StatusUnauthorized},
		{"wrong header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
			r.Header.Set("X-Admin-Key", "guess")
			return r
		}, http.StatusUnauthorized},
		{"header key", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
			r.Header.Set("X-Admin-Key", testutil.TestAdminKey)
			return r
		}, http.StatusOK},
		{"query key", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/admin/leads?key="+testutil.TestAdminKey, nil)
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req())
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestAdmin_OpenWithoutConfiguredKey(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *config.Config) { c.AdminKey = "" }))

	if w := env.get("/admin/grants"); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with no admin key configured, got %d", w.Code)
	}
}

func TestAdmin_ListLeadsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		lead := testutil.CreateTestLead(id, id+"@example.com", base.Add(time.Duration(i)*time.Hour))
		if err := env.store.SaveLead(ctx, &lead); err != nil {
			t.Fatal(err)
		}
	}

	w := env.admin(httptest.NewRequest(http.MethodGet, "/admin/leads", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp listResponse[models.Lead]
	decodeBody(t, w, &resp)
	if len(resp.Entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].ID != "new" || resp.Entries[2].ID != "old" {
		t.Errorf("Expected newest first, got %s..%s", resp.Entries[0].ID, resp.Entries[2].ID)
	}
}

func TestAdmin_EmptyListsAreArrays(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/admin/leads", "/admin/partners", "/admin/contributors", "/admin/intakes", "/admin/grants"} {
		w := env.admin(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
			continue
		}
		var resp map[string][]interface{}
		decodeBody(t, w, &resp)
		if resp["entries"] == nil {
			t.Errorf("%s: expected entries array, got %s", path, w.Body.String())
		}
	}
}

func TestAdmin_ContributorRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/contributor", fullContributorBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var created ContributorResponse
	decodeBody(t, w, &created)

	w = env.admin(httptest.NewRequest(http.MethodGet, "/admin/contributors", nil))
	var list listResponse[models.Contributor]
	decodeBody(t, w, &list)
	if len(list.Entries) != 1 {
		t.Fatalf("Expected 1 contributor, got %d", len(list.Entries))
	}
	got := list.Entries[0]
	if got.ID != created.ID || got.Score != created.Score || got.Rail != created.RailAssigned {
		t.Errorf("Listed contributor does not match submission: %+v", got)
	}
	if got.Name != "Dana Reyes" || got.FitAnswers.Constraints != "east coast only" {
		t.Errorf("Raw answers not preserved: %+v", got)
	}

	w = env.admin(httptest.NewRequest(http.MethodGet, "/admin/contributors/"+created.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var single models.Contributor
	decodeBody(t, w, &single)
	if single.ID != created.ID {
		t.Errorf("Expected contributor %s, got %s", created.ID, single.ID)
	}
}

func TestAdmin_GetContributorNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.admin(httptest.NewRequest(http.MethodGet, "/admin/contributors/missing", nil))

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "contributor not found")
}

func TestAdmin_UpdateContributorStatus(t *testing.T) {
	env := newTestEnv(t)
	c := testutil.CreateTestContributor("c1", "dana@example.com")
	if err := env.store.SaveContributor(context.Background(), &c); err != nil {
		t.Fatal(err)
	}

	t.Run("approve", func(t *testing.T) {
		w := env.admin(jsonRequest(t, http.MethodPatch, "/admin/contributors/c1/status", map[string]string{"status": "approved"}))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp map[string]string
		decodeBody(t, w, &resp)
		if resp["id"] != "c1" || resp["status"] != "approved" {
			t.Errorf("Unexpected response %v", resp)
		}
		got, _ := env.store.GetContributor(context.Background(), "c1")
		if got.Status != models.ContributorApproved {
			t.Errorf("Expected stored status approved, got %s", got.Status)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		w := env.admin(jsonRequest(t, http.MethodPatch, "/admin/contributors/c1/status", map[string]string{"status": "hired"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("unknown contributor", func(t *testing.T) {
		w := env.admin(jsonRequest(t, http.MethodPatch, "/admin/contributors/nope/status", map[string]string{"status": "rejected"}))
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "contributor not found")
	})

	t.Run("requires key", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPatch, "/admin/contributors/c1/status", map[string]string{"status": "rejected"}))
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})
}

func TestAdmin_ListGrantsShowsCancellation(t *testing.T) {
	env := newTestEnv(t)
	activateWithRefs(t, env, "a@example.com", "cus_a", "sub_a")
	activateWithRefs(t, env, "b@example.com", "cus_b", "sub_b")
	if _, err := env.gate.Cancel(context.Background(), "sub_b", ""); err != nil {
		t.Fatal(err)
	}

	w := env.admin(httptest.NewRequest(http.MethodGet, "/admin/grants", nil))
	var resp listResponse[models.AccessGrant]
	decodeBody(t, w, &resp)

	statuses := map[string]string{}
	for _, g := range resp.Entries {
		statuses[g.Email] = g.Status
	}
	if statuses["a@example.com"] != models.GrantActive || statuses["b@example.com"] != models.GrantCanceled {
		t.Errorf("Unexpected grant statuses %v", statuses)
	}
}
