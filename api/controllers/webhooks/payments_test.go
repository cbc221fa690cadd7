package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/paygateway"
)

const testSecret = "whsec_test"

func TestPaymentWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := chargePayload(t, "charge.success", "BZ-REF-1")
	service := &fakePaymentWebhookService{}
	guard := newGuard(t)
	handler := PaymentWebhook(service, testSecret, guard, nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(payload, paygateway.Sign(testSecret, payload)))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
	if service.last.Data.Reference != "BZ-REF-1" {
		t.Fatalf("unexpected reference %q", service.last.Data.Reference)
	}
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	payload := chargePayload(t, "charge.success", "BZ-REF-2")
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, testSecret, newGuard(t), nil)

	for _, sig := range []string{"", "deadbeef", paygateway.Sign("wrong-secret", payload)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(payload, sig))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for signature %q, got %d", sig, rec.Code)
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Code != string(pkgerrors.CodeInvalidSignature) {
			t.Fatalf("unexpected code %s", body.Error.Code)
		}
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPaymentWebhook_FailedDeliveryIsNotRemembered(t *testing.T) {
	payload := chargePayload(t, "charge.success", "BZ-REF-3")
	service := &fakePaymentWebhookService{err: pkgerrors.New(pkgerrors.CodeRetryableConflict, "busy")}
	handler := PaymentWebhook(service, testSecret, newGuard(t), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	service.err = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to be processed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected two attempts, got %d", service.calls)
	}
}

func TestPaymentWebhook_CopyDuringFailingAttemptIsProcessed(t *testing.T) {
	payload := chargePayload(t, "charge.success", "BZ-REF-4")
	service := &stallingWebhookService{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	handler := PaymentWebhook(service, testSecret, newGuard(t), nil)

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(first, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	}()
	<-service.started

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	if second.Code != http.StatusOK {
		t.Fatalf("expected copy to be processed, got %d (%s)", second.Code, second.Body.String())
	}
	var ack struct {
		Data webhookAck `json:"data"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Data.Duplicate {
		t.Fatalf("copy acknowledged as duplicate while the first attempt was unresolved")
	}

	close(service.release)
	<-done
	if first.Code != http.StatusConflict {
		t.Fatalf("expected failing attempt to return 409, got %d", first.Code)
	}

	third := httptest.NewRecorder()
	handler.ServeHTTP(third, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	if third.Code != http.StatusOK || service.callCount() != 2 {
		t.Fatalf("expected applied delivery to be remembered, code=%d calls=%d", third.Code, service.callCount())
	}
}

func TestPaymentWebhook_MalformedPayload(t *testing.T) {
	payload := []byte(`{"event":`)
	handler := PaymentWebhook(&fakePaymentWebhookService{}, testSecret, newGuard(t), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, paygateway.Sign(testSecret, payload)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func chargePayload(t *testing.T, event, reference string) []byte {
	t.Helper()
	amount := int64(2200)
	payload, err := json.Marshal(paygateway.WebhookEvent{
		Event: event,
		Data:  paygateway.WebhookData{Reference: reference, Amount: &amount, Channel: "card"},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func signedRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(paygateway.SignatureHeader, signature)
	}
	return req
}

func newGuard(t *testing.T) *payments.WebhookGuard {
	t.Helper()
	guard, err := payments.NewWebhookGuard(newInMemoryStore(), time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakePaymentWebhookService struct {
	calls int
	last  paygateway.WebhookEvent
	err   error
}

func (f *fakePaymentWebhookService) HandleWebhook(ctx context.Context, event paygateway.WebhookEvent) (*payments.Result, error) {
	f.calls++
	f.last = event
	if f.err != nil {
		return nil, f.err
	}
	return &payments.Result{Reference: event.Data.Reference, Applied: true}, nil
}

// stallingWebhookService blocks its first call until release closes and then
// fails it. Later calls succeed.
type stallingWebhookService struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *stallingWebhookService) HandleWebhook(ctx context.Context, event paygateway.WebhookEvent) (*payments.Result, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if call == 1 {
		close(s.started)
		<-s.release
		return nil, pkgerrors.New(pkgerrors.CodeRetryableConflict, "lock wait exceeded")
	}
	return &payments.Result{Reference: event.Data.Reference, Applied: true}, nil
}

func (s *stallingWebhookService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("bz:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
