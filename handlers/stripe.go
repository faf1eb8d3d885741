package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"

	"railgate.app/api/billing"
	"railgate.app/api/internal/access"
	"railgate.app/api/internal/email"
	"railgate.app/api/internal/logger"
	"railgate.app/api/internal/sideeffect"
)

const maxWebhookBytes = int64(65536)

func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	if s.checkout == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}

	customerEmail := r.URL.Query().Get("email")
	if err := s.validate.Var(customerEmail, "omitempty,email"); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid email")
		return
	}

	session, err := s.checkout.CreateSession(r.Context(), customerEmail)
	if err != nil {
		logger.Error("Failed to create checkout session", map[string]interface{}{
			"error": err.Error(),
		})
		reportError(r, err)
		writeErrorResponse(w, http.StatusBadGateway, "payment provider error")
		return
	}

	logger.Info("Checkout session created", map[string]interface{}{
		"session_id": session.ID,
	})
	http.Redirect(w, r, session.URL, http.StatusSeeOther)
}

func (s *Server) Success(w http.ResponseWriter, r *http.Request) {
	if s.checkout == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing session_id")
		return
	}

	session, err := s.checkout.GetSession(r.Context(), sessionID)
	if err != nil {
		logger.Error("Failed to retrieve checkout session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": sessionID,
		})
		reportError(r, err)
		writeErrorResponse(w, http.StatusBadGateway, "payment provider error")
		return
	}

	if !session.Paid() {
		logger.Warn("Success page hit for unpaid session", map[string]interface{}{
			"session_id":     session.ID,
			"payment_status": session.PaymentStatus,
		})
		writeErrorResponse(w, http.StatusPaymentRequired, "payment not completed")
		return
	}
	if session.Email == "" {
		writeErrorResponse(w, http.StatusBadRequest, "session has no customer email")
		return
	}

	buyer, err := s.handleCheckoutComplete(r.Context(), session)
	if err != nil {
		logger.Error("Failed to handle checkout completion", map[string]interface{}{
			"error":      err.Error(),
			"session_id": session.ID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The redirect carries its own token so the mailed link stays usable when
	// tokens are single use.
	token, err := s.gate.Issue(r.Context(), buyer, s.cfg.TokenTTL)
	if err != nil {
		logger.Error("Failed to issue redirect token", map[string]interface{}{
			"error":      err.Error(),
			"session_id": session.ID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.Redirect(w, r, s.cfg.DashboardURL(token), http.StatusSeeOther)
}

func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	if s.cfg.StripeWebhookSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET environment variable not set")
		writeErrorResponse(w, http.StatusInternalServerError, "webhook not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	event, err := billing.VerifyEvent(payload, signatureHeader, s.cfg.StripeWebhookSecret)
	if err != nil {
		logger.Error("Webhook signature verification failed", map[string]interface{}{
			"error":        err.Error(),
			"signature":    signatureHeader,
			"payload_size": len(payload),
		})
		reportError(r, fmt.Errorf("stripe webhook rejected: %w", err))
		writeErrorResponse(w, http.StatusBadRequest, "invalid signature")
		return
	}

	logger.Info("Stripe event verified", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	if err := s.dispatchEvent(ctx, event); err != nil {
		logger.Error("Failed to process webhook event", map[string]interface{}{
			"error":      err.Error(),
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		reportError(r, err)
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

func (s *Server) dispatchEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := billing.DecodeCheckoutSession(event)
		if err != nil {
			return err
		}
		if !session.Paid() {
			// Delayed payment methods complete unpaid; the async_payment_succeeded
			// event follows once funds settle.
			logger.Info("Checkout completed without payment yet", map[string]interface{}{
				"session_id":     session.ID,
				"payment_status": session.PaymentStatus,
			})
			return nil
		}
		if session.Email == "" {
			logger.Warn("Checkout session has no customer email", map[string]interface{}{
				"session_id": session.ID,
			})
			return nil
		}
		_, err = s.handleCheckoutComplete(ctx, session)
		return err

	case stripe.EventTypeCustomerSubscriptionDeleted:
		c, err := billing.DecodeSubscription(event)
		if err != nil {
			return err
		}
		_, err = s.gate.Cancel(ctx, c.SubscriptionRef, c.CustomerRef)
		return err

	case stripe.EventTypeCustomerSubscriptionUpdated:
		c, err := billing.DecodeSubscription(event)
		if err != nil {
			return err
		}
		if !c.Ended() {
			logger.Debug("Subscription update does not end access", map[string]interface{}{
				"subscription_ref": c.SubscriptionRef,
				"status":           c.Status,
			})
			return nil
		}
		_, err = s.gate.Cancel(ctx, c.SubscriptionRef, c.CustomerRef)
		return err

	default:
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		return nil
	}
}

// handleCheckoutComplete activates the buyer's grant and returns the
// normalized email. The magic link is issued and mailed only the first time a
// session is seen, whether that is via the webhook or the success page. Mail
// failure is logged and ignored.
func (s *Server) handleCheckoutComplete(ctx context.Context, session *billing.Session) (string, error) {
	logger.Info("Processing checkout session", map[string]interface{}{
		"session_id":       session.ID,
		"customer_email":   session.Email,
		"customer_ref":     session.CustomerRef,
		"subscription_ref": session.SubscriptionRef,
		"payment_status":   session.PaymentStatus,
	})

	grant, err := s.gate.Activate(ctx, access.GrantEvent{
		Email:           session.Email,
		CustomerRef:     session.CustomerRef,
		SubscriptionRef: session.SubscriptionRef,
	})
	if err != nil {
		return "", err
	}

	first, err := s.Storage.MarkCheckoutProcessed(ctx, session.ID, grant.Email, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if !first {
		logger.Info("Checkout session already processed", map[string]interface{}{
			"session_id": session.ID,
		})
		return grant.Email, nil
	}

	token, err := s.gate.Issue(ctx, grant.Email, s.cfg.TokenTTL)
	if err != nil {
		return "", err
	}

	s.sendMagicLink(grant.Email, token)
	return grant.Email, nil
}

func (s *Server) sendMagicLink(to, token string) sideeffect.Result {
	subject, body := email.MagicLink(s.cfg.DashboardURL(token), s.cfg.TokenTTL)
	return sideeffect.Attempt("magic_link", map[string]interface{}{"email": to}, func() error {
		return s.mailer.Send(to, subject, body)
	})
}
