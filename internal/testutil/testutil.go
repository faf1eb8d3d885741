package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"railgate.app/api/billing"
	"railgate.app/api/internal/config"
	"railgate.app/api/models"
	"railgate.app/api/storage"
)

const (
	TestTokenSecret   = "test-token-secret-0123456789"
	TestWebhookSecret = "whsec_test_secret"
	TestAdminKey      = "admin-test-key"
	TestBaseURL       = "https://railgate.test"
)

// TestConfig returns a valid configuration with Stripe, admin key and owner
// notifications set. Callers may modify the copy they get.
func TestConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		DatabasePath:        ":memory:",
		BaseURL:             TestBaseURL,
		StripeSecret:        "sk_test_123",
		StripeWebhookSecret: TestWebhookSecret,
		StripePriceID:       "price_test",
		TokenSecret:         TestTokenSecret,
		TokenTTL:            24 * time.Hour,
		ScoreCeiling:        100,
		AdminKey:            TestAdminKey,
		NotifyEmail:         "owner@railgate.test",
		AllowedOrigins:      []string{"*"},
		RateLimitPerMinute:  0,
		LogLevel:            "warn",
	}
}

func TestStorage() *storage.MemoryStorage {
	return storage.NewMemoryStorage()
}

// SentMail is one message captured by RecordingMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer captures outgoing mail. When Err is set every send fails
// with it, after being recorded.
type RecordingMailer struct {
	mu   sync.Mutex
	Sent []SentMail
	Err  error
}

func (m *RecordingMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, Body: body})
	return m.Err
}

func (m *RecordingMailer) SentTo(to string) []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMail
	for _, s := range m.Sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

// FakeCheckout is an in-memory billing.Checkout.
type FakeCheckout struct {
	mu        sync.Mutex
	Sessions  map[string]*billing.Session
	Created   []string
	CreateErr error
	GetErr    error
}

func NewFakeCheckout() *FakeCheckout {
	return &FakeCheckout{Sessions: make(map[string]*billing.Session)}
}

func (f *FakeCheckout) CreateSession(ctx context.Context, email string) (*billing.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	id := fmt.Sprintf("cs_test_%d", len(f.Created)+1)
	s := &billing.Session{
		ID:            id,
		URL:           "https://checkout.stripe.test/pay/" + id,
		Email:         email,
		PaymentStatus: "unpaid",
	}
	f.Sessions[id] = s
	f.Created = append(f.Created, email)
	return s, nil
}

func (f *FakeCheckout) GetSession(ctx context.Context, id string) (*billing.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	s, ok := f.Sessions[id]
	if !ok {
		return nil, errors.New("No such checkout.session: " + id)
	}
	return s, nil
}

// AddPaidSession registers a settled session the success page can retrieve.
func (f *FakeCheckout) AddPaidSession(id, email, customerRef, subscriptionRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions[id] = &billing.Session{
		ID:              id,
		Email:           email,
		CustomerRef:     customerRef,
		SubscriptionRef: subscriptionRef,
		PaymentStatus:   "paid",
	}
}

// SignedWebhook builds a Stripe event around object and signs it with
// TestWebhookSecret. It returns the payload and the Stripe-Signature header.
func SignedWebhook(t testing.TB, eventType string, object map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_" + eventType,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  TestWebhookSecret,
	})
	return payload, signed.Header
}

func CheckoutSessionObject(email, sessionID, customerRef, subscriptionRef, paymentStatus string) map[string]interface{} {
	session := map[string]interface{}{
		"id":             sessionID,
		"object":         "checkout.session",
		"customer_email": email,
		"payment_status": paymentStatus,
		"mode":           "subscription",
	}
	if customerRef != "" {
		session["customer"] = customerRef
	}
	if subscriptionRef != "" {
		session["subscription"] = subscriptionRef
	}
	return session
}

func SubscriptionObject(subscriptionRef, customerRef, status string) map[string]interface{} {
	return map[string]interface{}{
		"id":       subscriptionRef,
		"object":   "subscription",
		"customer": customerRef,
		"status":   status,
	}
}

// CreateTestContributor fills every stored field so round trips can be
// compared field by field.
func CreateTestContributor(id, email string) models.Contributor {
	return models.Contributor{
		ID:               id,
		Name:             "Dana Reyes",
		Email:            email,
		Phone:            "+1 555 0100",
		Company:          "Acme",
		Website:          "https://example.com",
		Track:            "ecosystem_staff",
		PrimaryRole:      "operations",
		Region:           "US East",
		CompPlan:         "residual monthly",
		Alignment:        "strong",
		Authority:        "owner_exec",
		Lane:             "ops",
		PositionInterest: "field lead",
		Assets:           "10 warehouses with forklifts",
		Capacity:         "20h/week",
		Message:          "Line one\nLine two with \"quotes\" and émoji ✓",
		FitAnswers: models.FitAnswers{
			Problem:     "venue ops",
			Customers:   "event producers",
			Pipeline:    "12 accounts",
			Timeline:    "now",
			Budget:      "50k",
			Proof:       "case studies",
			Team:        "4 people",
			Constraints: "east coast only",
		},
		Score:     74,
		Rail:      "staff_priority",
		Status:    models.ContributorNew,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func CreateTestLead(id, email string, createdAt time.Time) models.Lead {
	return models.Lead{
		ID:        id,
		Name:      "Lead " + id,
		Email:     email,
		Company:   "Acme",
		Message:   "Interested",
		Source:    "homepage",
		CreatedAt: createdAt,
	}
}

// AssertErrorResponse checks the status code and the {"error": ...} body.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d (body %s)", expectedStatus, w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}

	if response["error"] != expectedError {
		t.Errorf("Expected error '%s', got '%v'", expectedError, response["error"])
	}
}
