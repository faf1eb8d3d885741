package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railgate.app/api/models"
	"railgate.app/api/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGate(t *testing.T, singleUse bool) (*Gate, *storage.MemoryStorage, *fakeClock) {
	t.Helper()
	store := storage.NewMemoryStorage()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	gate := NewGate(store, Options{
		Secret:    []byte("test-secret-at-least-16"),
		TTL:       time.Hour,
		SingleUse: singleUse,
		Now:       clock.Now,
	})
	return gate, store, clock
}

func TestIssueThenValidate(t *testing.T) {
	gate, store, _ := newTestGate(t, false)
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "Buyer@Example.com ", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	email, err := gate.Validate(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", email)

	require.Len(t, store.Tokens, 1)
	assert.NotEqual(t, secret, store.Tokens[0].Digest, "raw secret must not be stored")
	assert.Len(t, store.Tokens[0].Digest, 64)
}

func TestIssue_SecretsAreUnique(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		secret, err := gate.Issue(ctx, "a@example.com", 0)
		require.NoError(t, err)
		require.False(t, seen[secret])
		seen[secret] = true
	}
}

func TestIssue_RequiresEmail(t *testing.T) {
	gate, _, _ := newTestGate(t, false)

	_, err := gate.Issue(context.Background(), "   ", 0)
	assert.Error(t, err)
}

func TestValidate_Expiry(t *testing.T) {
	gate, _, clock := newTestGate(t, false)
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "a@example.com", 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Second)
	_, err = gate.Validate(ctx, secret)
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = gate.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken, "token is dead at its expiry instant")

	clock.Advance(24 * time.Hour)
	_, err = gate.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_UnknownAndMissing(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	_, err := gate.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = gate.Validate(ctx, "not-a-real-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_DigestDependsOnKey(t *testing.T) {
	gate, store, _ := newTestGate(t, false)
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	other := NewGate(store, Options{Secret: []byte("a-different-secret-key"), TTL: time.Hour})
	_, err = other.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_PriorTokensStayValid(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	first, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)
	second, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	for _, secret := range []string{first, second} {
		email, err := gate.Validate(ctx, secret)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", email)
	}
}

func TestValidate_SingleUse(t *testing.T) {
	gate, store, _ := newTestGate(t, true)
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	_, err = gate.Validate(ctx, secret)
	require.NoError(t, err)
	require.NotNil(t, store.Tokens[0].UsedAt)

	_, err = gate.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsActive(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	active, err := gate.IsActive(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, active, "no grant row means inactive")

	_, err = gate.Activate(ctx, GrantEvent{Email: "a@example.com", CustomerRef: "cus_1", SubscriptionRef: "sub_1"})
	require.NoError(t, err)

	active, err = gate.IsActive(ctx, "A@example.com")
	require.NoError(t, err)
	assert.True(t, active)

	ok, err := gate.Cancel(ctx, "sub_1", "")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = gate.IsActive(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, active, "canceled grant means inactive")
}

func TestRequireAccess(t *testing.T) {
	gate, _, clock := newTestGate(t, false)
	ctx := context.Background()

	_, err := gate.RequireAccess(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = gate.RequireAccess(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)

	secret, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	email, err := gate.RequireAccess(ctx, secret)
	assert.ErrorIs(t, err, ErrInactive)
	assert.Equal(t, "a@example.com", email)

	_, err = gate.Activate(ctx, GrantEvent{Email: "a@example.com"})
	require.NoError(t, err)

	email, err = gate.RequireAccess(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	clock.Advance(2 * time.Hour)
	_, err = gate.RequireAccess(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestActivate_ReplayIsIdempotent(t *testing.T) {
	gate, store, clock := newTestGate(t, false)
	ctx := context.Background()
	ev := GrantEvent{Email: "a@example.com", CustomerRef: "cus_1", SubscriptionRef: "sub_1"}

	first, err := gate.Activate(ctx, ev)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = gate.Activate(ctx, ev)
	require.NoError(t, err)

	grants, err := store.ListGrants(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.GrantActive, grants[0].Status)
	assert.Equal(t, first.CreatedAt, grants[0].CreatedAt)
	assert.Equal(t, clock.now, grants[0].UpdatedAt)
	assert.Equal(t, "sub_1", grants[0].SubscriptionRef)
}

func TestActivate_ReactivatesCanceledGrant(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	_, err := gate.Activate(ctx, GrantEvent{Email: "a@example.com", SubscriptionRef: "sub_1"})
	require.NoError(t, err)
	_, err = gate.Cancel(ctx, "sub_1", "")
	require.NoError(t, err)

	_, err = gate.Activate(ctx, GrantEvent{Email: "a@example.com", SubscriptionRef: "sub_2"})
	require.NoError(t, err)

	active, err := gate.IsActive(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestCancel_FallsBackToCustomer(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	_, err := gate.Activate(ctx, GrantEvent{Email: "a@example.com", CustomerRef: "cus_9"})
	require.NoError(t, err)

	ok, err := gate.Cancel(ctx, "sub_unknown", "cus_9")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := gate.IsActive(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCancel_StaleSubscriptionKeepsResubscribedGrant(t *testing.T) {
	gate, _, _ := newTestGate(t, false)
	ctx := context.Background()

	_, err := gate.Activate(ctx, GrantEvent{Email: "a@example.com", CustomerRef: "cus_1", SubscriptionRef: "sub_1"})
	require.NoError(t, err)
	_, err = gate.Activate(ctx, GrantEvent{Email: "a@example.com", CustomerRef: "cus_1", SubscriptionRef: "sub_2"})
	require.NoError(t, err)

	ok, err := gate.Cancel(ctx, "sub_1", "cus_1")
	require.NoError(t, err)
	assert.False(t, ok, "an old subscription must not match the customer's newer one")

	active, err := gate.IsActive(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, active)

	ok, err = gate.Cancel(ctx, "sub_2", "cus_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancel_NoMatch(t *testing.T) {
	gate, _, _ := newTestGate(t, false)

	ok, err := gate.Cancel(context.Background(), "sub_x", "cus_x")
	require.NoError(t, err)
	assert.False(t, ok)
}

// staleReadStore hides used_at on lookup, as a concurrent reader would see a
// token another request is about to consume.
type staleReadStore struct {
	*storage.MemoryStorage
}

func (s staleReadStore) FindLatestTokenByDigest(ctx context.Context, digest string) (*models.AccessToken, error) {
	tok, err := s.MemoryStorage.FindLatestTokenByDigest(ctx, digest)
	if tok != nil {
		tok.UsedAt = nil
	}
	return tok, err
}

func TestValidate_SingleUseConsumesAtomically(t *testing.T) {
	store := staleReadStore{storage.NewMemoryStorage()}
	gate := NewGate(store, Options{Secret: []byte("test-secret-at-least-16"), TTL: time.Hour, SingleUse: true})
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	_, err = gate.Validate(ctx, secret)
	require.NoError(t, err)

	// The lookup now claims the token is unused; the conditional update decides.
	_, err = gate.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_SingleUseConcurrent(t *testing.T) {
	gate, _, _ := newTestGate(t, true)
	ctx := context.Background()

	secret, err := gate.Issue(ctx, "a@example.com", 0)
	require.NoError(t, err)

	const workers = 8
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := gate.Validate(ctx, secret)
			results <- err
		}()
	}

	accepted := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, ErrInvalidToken)
		}
	}
	assert.Equal(t, 1, accepted)
}

type failingStore struct {
	storage.Storage
}

func (failingStore) FindGrantByEmail(ctx context.Context, email string) (*models.AccessGrant, error) {
	return nil, errors.New("disk on fire")
}

func TestIsActive_StorageErrorPropagates(t *testing.T) {
	gate := NewGate(failingStore{Storage: storage.NewMemoryStorage()}, Options{Secret: []byte("k"), TTL: time.Hour})

	_, err := gate.IsActive(context.Background(), "a@example.com")
	assert.Error(t, err)
}
