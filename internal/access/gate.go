// Package access issues magic-link tokens and decides whether a token holder
// currently has paid access.
package access

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"railgate.app/api/internal/logger"
	"railgate.app/api/models"
	"railgate.app/api/storage"
)

const secretBytes = 32

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrInactive     = errors.New("subscription inactive")
)

// GrantEvent is a confirmed payment for Email, from checkout or a webhook.
type GrantEvent struct {
	Email           string
	CustomerRef     string
	SubscriptionRef string
}

type Options struct {
	Secret    []byte
	TTL       time.Duration
	SingleUse bool
	Now       func() time.Time
}

type Gate struct {
	store     storage.Storage
	secret    []byte
	ttl       time.Duration
	singleUse bool
	now       func() time.Time
}

func NewGate(store storage.Storage, opts Options) *Gate {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		store:     store,
		secret:    opts.Secret,
		ttl:       opts.TTL,
		singleUse: opts.SingleUse,
		now:       now,
	}
}

// SingleUse reports whether a token stops working after its first successful
// validation.
func (g *Gate) SingleUse() bool {
	return g.singleUse
}

// Issue stores a new token for email and returns the raw secret. Existing
// tokens for the same email stay valid until they expire.
func (g *Gate) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("cannot issue token without email")
	}
	if ttl <= 0 {
		ttl = g.ttl
	}

	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	now := g.now().UTC()
	token := &models.AccessToken{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Email:     email,
		Digest:    g.digest(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := g.store.SaveToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}

	logger.Info("Access token issued", map[string]interface{}{
		"email":      email,
		"token_id":   token.ID,
		"expires_at": token.ExpiresAt,
	})
	return secret, nil
}

// Validate returns the email bound to secret. Unknown, expired and consumed
// tokens all produce ErrInvalidToken.
func (g *Gate) Validate(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingToken
	}

	want := g.digest(secret)
	token, err := g.store.FindLatestTokenByDigest(ctx, want)
	if err != nil {
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
	if token == nil || !hmac.Equal([]byte(token.Digest), []byte(want)) {
		return "", ErrInvalidToken
	}

	now := g.now()
	if token.IsExpired(now) {
		logger.Debug("Expired token presented", map[string]interface{}{
			"token_id": token.ID,
		})
		return "", ErrInvalidToken
	}

	if g.singleUse {
		if token.IsUsed() {
			return "", ErrInvalidToken
		}
		consumed, err := g.store.MarkTokenUsed(ctx, token.ID, now.UTC())
		if err != nil {
			return "", fmt.Errorf("failed to consume token: %w", err)
		}
		if !consumed {
			// Another request consumed it between the lookup and the update.
			return "", ErrInvalidToken
		}
	}

	return token.Email, nil
}

func (g *Gate) IsActive(ctx context.Context, email string) (bool, error) {
	grant, err := g.store.FindGrantByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to look up grant: %w", err)
	}
	return grant != nil && grant.IsActive(), nil
}

// RequireAccess is Validate followed by IsActive.
func (g *Gate) RequireAccess(ctx context.Context, secret string) (string, error) {
	email, err := g.Validate(ctx, secret)
	if err != nil {
		return "", err
	}

	active, err := g.IsActive(ctx, email)
	if err != nil {
		return "", err
	}
	if !active {
		return email, ErrInactive
	}
	return email, nil
}

// Activate upserts an active grant for the event's email. Replaying the same
// event only refreshes updated_at.
func (g *Gate) Activate(ctx context.Context, ev GrantEvent) (*models.AccessGrant, error) {
	email := normalizeEmail(ev.Email)
	if email == "" {
		return nil, fmt.Errorf("cannot activate grant without email")
	}

	now := g.now().UTC()
	grant := &models.AccessGrant{
		Email:           email,
		Status:          models.GrantActive,
		CustomerRef:     ev.CustomerRef,
		SubscriptionRef: ev.SubscriptionRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := g.store.UpsertGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to activate grant: %w", err)
	}

	logger.Info("Access grant activated", map[string]interface{}{
		"email":            email,
		"customer_ref":     ev.CustomerRef,
		"subscription_ref": ev.SubscriptionRef,
	})
	return grant, nil
}

// Cancel flips the grant carrying subscriptionRef to canceled. When no grant
// carries it, the customer reference is tried, but only against grants that
// never recorded a subscription, so a stale event for an old subscription
// cannot revoke a newer one. It reports whether any grant matched.
func (g *Gate) Cancel(ctx context.Context, subscriptionRef, customerRef string) (bool, error) {
	now := g.now().UTC()

	n, err := g.store.CancelGrantsBySubscription(ctx, subscriptionRef, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel by subscription: %w", err)
	}
	if n == 0 {
		n, err = g.store.CancelGrantsByCustomer(ctx, customerRef, now)
		if err != nil {
			return false, fmt.Errorf("failed to cancel by customer: %w", err)
		}
	}

	fields := map[string]interface{}{
		"subscription_ref": subscriptionRef,
		"customer_ref":     customerRef,
		"canceled":         n,
	}
	if n == 0 {
		logger.Warn("No grant matched cancellation", fields)
		return false, nil
	}
	logger.Info("Access grant canceled", fields)
	return true, nil
}

func (g *Gate) digest(secret string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
