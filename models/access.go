package models

import "time"

const (
	GrantActive   = "active"
	GrantCanceled = "canceled"
)

// AccessGrant records whether an email currently has paid access. There is at
// most one grant per email and grants are never deleted.
type AccessGrant struct {
	Email           string    `json:"email"`
	Status          string    `json:"status"`
	CustomerRef     string    `json:"customer_ref"`
	SubscriptionRef string    `json:"subscription_ref"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (g *AccessGrant) IsActive() bool {
	return g != nil && g.Status == GrantActive
}

// AccessToken is the persisted half of a magic link. Only the digest of the
// secret is stored.
type AccessToken struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Digest    string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func (t *AccessToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *AccessToken) IsUsed() bool {
	return t.UsedAt != nil
}
