package testutil

import (
	"context"
	"testing"
	"time"

	"railgate.app/api/models"
	"railgate.app/api/storage"
)

// StorageTestSuite runs the same behavioural checks against any Storage.
// New must return an empty store; it is called once per subtest.
type StorageTestSuite struct {
	New func(t *testing.T) storage.Storage
}

func RunStorageTestSuite(t *testing.T, suite StorageTestSuite) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	open := func(t *testing.T) storage.Storage {
		s := suite.New(t)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("LeadsNewestFirst", func(t *testing.T) {
		s := open(t)
		for i, id := range []string{"l1", "l2", "l3"} {
			lead := CreateTestLead(id, id+"@example.com", base.Add(time.Duration(i)*time.Minute))
			if err := s.SaveLead(ctx, &lead); err != nil {
				t.Fatalf("Failed to save lead: %v", err)
			}
		}

		leads, err := s.ListLeads(ctx)
		if err != nil {
			t.Fatalf("Failed to list leads: %v", err)
		}
		if len(leads) != 3 {
			t.Fatalf("Expected 3 leads, got %d", len(leads))
		}
		for i, want := range []string{"l3", "l2", "l1"} {
			if leads[i].ID != want {
				t.Errorf("Position %d: expected %s, got %s", i, want, leads[i].ID)
			}
		}
		if leads[0].Source != "homepage" || leads[0].Email != "l3@example.com" {
			t.Errorf("Lead fields not preserved: %+v", leads[0])
		}
	})

	t.Run("SameTimestampKeepsInsertOrder", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"a", "b"} {
			lead := CreateTestLead(id, id+"@example.com", base)
			if err := s.SaveLead(ctx, &lead); err != nil {
				t.Fatalf("Failed to save lead: %v", err)
			}
		}
		leads, err := s.ListLeads(ctx)
		if err != nil {
			t.Fatalf("Failed to list leads: %v", err)
		}
		if len(leads) != 2 || leads[0].ID != "b" {
			t.Errorf("Expected the later insert first, got %+v", leads)
		}
	})

	t.Run("Partners", func(t *testing.T) {
		s := open(t)
		p := models.Partner{
			ID: "p1", Name: "Pat", Email: "pat@example.com", Company: "Vendor Co",
			Website: "https://vendor.example", PartnershipType: "reseller", Message: "hi", CreatedAt: base,
		}
		if err := s.SavePartner(ctx, &p); err != nil {
			t.Fatalf("Failed to save partner: %v", err)
		}
		partners, err := s.ListPartners(ctx)
		if err != nil {
			t.Fatalf("Failed to list partners: %v", err)
		}
		if len(partners) != 1 || partners[0].PartnershipType != "reseller" || partners[0].Website != p.Website {
			t.Errorf("Unexpected partners: %+v", partners)
		}
	})

	t.Run("Intakes", func(t *testing.T) {
		s := open(t)
		in := models.Intake{ID: "i1", Email: "a@example.com", Role: "founder", Context: "ctx", Narrative: "long story", CreatedAt: base}
		if err := s.SaveIntake(ctx, &in); err != nil {
			t.Fatalf("Failed to save intake: %v", err)
		}
		intakes, err := s.ListIntakes(ctx)
		if err != nil {
			t.Fatalf("Failed to list intakes: %v", err)
		}
		if len(intakes) != 1 || intakes[0].Narrative != "long story" || intakes[0].Email != "a@example.com" {
			t.Errorf("Unexpected intakes: %+v", intakes)
		}
	})

	t.Run("ContributorRoundTrip", func(t *testing.T) {
		s := open(t)
		want := CreateTestContributor("c1", "dana@example.com")
		if err := s.SaveContributor(ctx, &want); err != nil {
			t.Fatalf("Failed to save contributor: %v", err)
		}

		got, err := s.GetContributor(ctx, "c1")
		if err != nil {
			t.Fatalf("Failed to get contributor: %v", err)
		}
		if got == nil {
			t.Fatalf("Expected contributor, got nil")
		}
		assertSameContributor(t, want, *got)

		list, err := s.ListContributors(ctx)
		if err != nil {
			t.Fatalf("Failed to list contributors: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("Expected 1 contributor, got %d", len(list))
		}
		assertSameContributor(t, want, *list[0])
	})

	t.Run("ContributorStatus", func(t *testing.T) {
		s := open(t)
		c := CreateTestContributor("c1", "dana@example.com")
		if err := s.SaveContributor(ctx, &c); err != nil {
			t.Fatalf("Failed to save contributor: %v", err)
		}

		ok, err := s.UpdateContributorStatus(ctx, "c1", models.ContributorApproved)
		if err != nil || !ok {
			t.Fatalf("Expected update to succeed, got ok=%v err=%v", ok, err)
		}
		got, _ := s.GetContributor(ctx, "c1")
		if got.Status != models.ContributorApproved {
			t.Errorf("Expected status approved, got %s", got.Status)
		}
		if got.Score != c.Score || got.Rail != c.Rail {
			t.Errorf("Status update must not touch score or rail")
		}

		ok, err = s.UpdateContributorStatus(ctx, "missing", models.ContributorApproved)
		if err != nil || ok {
			t.Errorf("Expected no update for unknown id, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("GrantUpsert", func(t *testing.T) {
		s := open(t)

		g, err := s.FindGrantByEmail(ctx, "a@example.com")
		if err != nil || g != nil {
			t.Fatalf("Expected (nil, nil) for missing grant, got %v, %v", g, err)
		}

		first := models.AccessGrant{
			Email: "a@example.com", Status: models.GrantActive,
			CustomerRef: "cus_1", SubscriptionRef: "sub_1", CreatedAt: base, UpdatedAt: base,
		}
		if err := s.UpsertGrant(ctx, &first); err != nil {
			t.Fatalf("Failed to upsert grant: %v", err)
		}

		later := base.Add(time.Hour)
		replay := models.AccessGrant{
			Email: "a@example.com", Status: models.GrantActive, CreatedAt: later, UpdatedAt: later,
		}
		if err := s.UpsertGrant(ctx, &replay); err != nil {
			t.Fatalf("Failed to upsert grant: %v", err)
		}

		grants, err := s.ListGrants(ctx)
		if err != nil {
			t.Fatalf("Failed to list grants: %v", err)
		}
		if len(grants) != 1 {
			t.Fatalf("Expected exactly 1 grant, got %d", len(grants))
		}
		got := grants[0]
		if got.CustomerRef != "cus_1" || got.SubscriptionRef != "sub_1" {
			t.Errorf("Empty refs must not overwrite stored ones: %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("created_at must be kept, got %v", got.CreatedAt)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("updated_at must be refreshed, got %v", got.UpdatedAt)
		}
	})

	t.Run("GrantCancel", func(t *testing.T) {
		s := open(t)
		for _, g := range []models.AccessGrant{
			{Email: "a@example.com", Status: models.GrantActive, CustomerRef: "cus_a", SubscriptionRef: "sub_a", CreatedAt: base, UpdatedAt: base},
			{Email: "b@example.com", Status: models.GrantActive, CustomerRef: "cus_b", CreatedAt: base, UpdatedAt: base},
			{Email: "c@example.com", Status: models.GrantActive, CustomerRef: "cus_b", SubscriptionRef: "sub_c", CreatedAt: base, UpdatedAt: base},
		} {
			g := g
			if err := s.UpsertGrant(ctx, &g); err != nil {
				t.Fatalf("Failed to upsert grant: %v", err)
			}
		}

		at := base.Add(time.Hour)
		n, err := s.CancelGrantsBySubscription(ctx, "sub_a", at)
		if err != nil || n != 1 {
			t.Fatalf("Expected 1 cancellation, got %d, %v", n, err)
		}
		n, err = s.CancelGrantsBySubscription(ctx, "", at)
		if err != nil || n != 0 {
			t.Errorf("Empty ref must match nothing, got %d, %v", n, err)
		}
		n, err = s.CancelGrantsByCustomer(ctx, "cus_b", at)
		if err != nil || n != 1 {
			t.Fatalf("Expected only the grant without a subscription to be canceled, got %d, %v", n, err)
		}

		c, err := s.FindGrantByEmail(ctx, "c@example.com")
		if err != nil || c == nil || !c.IsActive() {
			t.Errorf("Grant on another subscription must stay active, got %+v, %v", c, err)
		}

		for _, email := range []string{"a@example.com", "b@example.com"} {
			g, err := s.FindGrantByEmail(ctx, email)
			if err != nil || g == nil {
				t.Fatalf("Expected grant for %s: %v", email, err)
			}
			if g.Status != models.GrantCanceled {
				t.Errorf("Expected %s canceled, got %s", email, g.Status)
			}
			if !g.UpdatedAt.Equal(at) {
				t.Errorf("Expected updated_at %v, got %v", at, g.UpdatedAt)
			}
		}
	})

	t.Run("Tokens", func(t *testing.T) {
		s := open(t)

		tok, err := s.FindLatestTokenByDigest(ctx, "nope")
		if err != nil || tok != nil {
			t.Fatalf("Expected (nil, nil) for unknown digest, got %v, %v", tok, err)
		}

		older := models.AccessToken{ID: "t1", Email: "a@example.com", Digest: "d1", ExpiresAt: base.Add(time.Hour), CreatedAt: base}
		newer := models.AccessToken{ID: "t2", Email: "a@example.com", Digest: "d1", ExpiresAt: base.Add(2 * time.Hour), CreatedAt: base.Add(time.Minute)}
		for _, tk := range []models.AccessToken{older, newer} {
			tk := tk
			if err := s.SaveToken(ctx, &tk); err != nil {
				t.Fatalf("Failed to save token: %v", err)
			}
		}

		tok, err = s.FindLatestTokenByDigest(ctx, "d1")
		if err != nil || tok == nil {
			t.Fatalf("Expected token, got %v, %v", tok, err)
		}
		if tok.ID != "t2" {
			t.Errorf("Expected most recent token t2, got %s", tok.ID)
		}
		if !tok.ExpiresAt.Equal(newer.ExpiresAt) {
			t.Errorf("Expected expiry %v, got %v", newer.ExpiresAt, tok.ExpiresAt)
		}
		if tok.UsedAt != nil {
			t.Errorf("Fresh token must not be used")
		}

		usedAt := base.Add(5 * time.Minute)
		ok, err := s.MarkTokenUsed(ctx, "t2", usedAt)
		if err != nil || !ok {
			t.Fatalf("Expected first consumption to succeed, got ok=%v err=%v", ok, err)
		}
		ok, err = s.MarkTokenUsed(ctx, "t2", usedAt.Add(time.Minute))
		if err != nil || ok {
			t.Errorf("Second consumption must report false, got ok=%v err=%v", ok, err)
		}
		ok, err = s.MarkTokenUsed(ctx, "missing", usedAt)
		if err != nil || ok {
			t.Errorf("Unknown token must report false, got ok=%v err=%v", ok, err)
		}

		tok, _ = s.FindLatestTokenByDigest(ctx, "d1")
		if tok.UsedAt == nil || !tok.UsedAt.Equal(usedAt) {
			t.Errorf("Expected used_at to keep the first stamp %v, got %v", usedAt, tok.UsedAt)
		}
	})

	t.Run("CheckoutProcessedOnce", func(t *testing.T) {
		s := open(t)

		first, err := s.MarkCheckoutProcessed(ctx, "cs_1", "a@example.com", base)
		if err != nil || !first {
			t.Fatalf("Expected first record to win, got %v, %v", first, err)
		}
		again, err := s.MarkCheckoutProcessed(ctx, "cs_1", "a@example.com", base.Add(time.Minute))
		if err != nil || again {
			t.Errorf("Replay must not be first, got %v, %v", again, err)
		}
		other, err := s.MarkCheckoutProcessed(ctx, "cs_2", "a@example.com", base)
		if err != nil || !other {
			t.Errorf("A different session is new, got %v, %v", other, err)
		}
	})
}

func assertSameContributor(t *testing.T, want, got models.Contributor) {
	t.Helper()
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at: expected %v, got %v", want.CreatedAt, got.CreatedAt)
	}
	want.CreatedAt, got.CreatedAt = time.Time{}, time.Time{}
	if want != got {
		t.Errorf("Contributor not preserved:\nwant %+v\ngot  %+v", want, got)
	}
}
