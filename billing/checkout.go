// Package billing wraps the Stripe calls the service makes: hosted checkout
// sessions and signed webhook events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrNotConfigured = errors.New("stripe is not configured")

// Session is the part of a Checkout Session the service acts on.
type Session struct {
	ID              string
	URL             string
	Email           string
	CustomerRef     string
	SubscriptionRef string
	PaymentStatus   string
}

// Paid reports whether the session settled, including zero-amount trials.
func (s *Session) Paid() bool {
	return s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) ||
		s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired)
}

type Checkout interface {
	CreateSession(ctx context.Context, email string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

type StripeCheckout struct {
	priceID    string
	successURL string
	cancelURL  string
}

// NewStripeCheckout sets the process-wide Stripe key and returns a client for
// subscription-mode sessions on priceID.
func NewStripeCheckout(secretKey, priceID, successURL, cancelURL string) (*StripeCheckout, error) {
	if secretKey == "" || priceID == "" {
		return nil, ErrNotConfigured
	}
	stripe.Key = secretKey

	return &StripeCheckout{
		priceID:    priceID,
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

func (c *StripeCheckout) CreateSession(ctx context.Context, email string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return FromStripe(s), nil
}

func (c *StripeCheckout) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return FromStripe(s), nil
}

// FromStripe flattens a Stripe session. CustomerDetails wins over the
// prefilled CustomerEmail because it is what the buyer actually typed.
func FromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Email:         s.CustomerEmail,
		PaymentStatus: string(s.PaymentStatus),
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.Email = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerRef = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
	}
	return out
}

// VerifyEvent checks the Stripe-Signature header and parses the payload.
// API version mismatches are tolerated so dashboard upgrades do not break
// delivery.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// Cancellation identifies the grant a subscription event should cancel.
type Cancellation struct {
	SubscriptionRef string
	CustomerRef     string
	Status          string
}

func DecodeSubscription(event stripe.Event) (*Cancellation, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	c := &Cancellation{
		SubscriptionRef: sub.ID,
		Status:          string(sub.Status),
	}
	if sub.Customer != nil {
		c.CustomerRef = sub.Customer.ID
	}
	return c, nil
}

// Ended reports whether a subscription status means access should stop.
func (c *Cancellation) Ended() bool {
	switch stripe.SubscriptionStatus(c.Status) {
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		return true
	}
	return false
}

func DecodeCheckoutSession(event stripe.Event) (*Session, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return FromStripe(&s), nil
}
