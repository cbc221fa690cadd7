package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

// send runs one request through the middleware and returns the recorder.
func send(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteTTL(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/orders/6f1c/cancel", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/orders/6f1c/payment/retry", criticalIdempotencyTTL, true},
		{http.MethodPatch, "/api/v1/orders/6f1c/status", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/inventory/adjust", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/orders/cancel", 0, false},
		{http.MethodGet, "/api/v1/orders", 0, false},
		{http.MethodPost, "/api/v1/webhooks/payments", 0, false},
	}
	for _, tc := range cases {
		ttl, ok := routeTTL(tc.method, tc.path)
		if ok != tc.ok || ttl != tc.want {
			t.Fatalf("%s %s: got (%v, %v) want (%v, %v)", tc.method, tc.path, ttl, ok, tc.want, tc.ok)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	h := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := send(h, http.MethodPost, "/api/v1/orders", "", `{}`)
	if rec.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without calling handler, got %d called=%v", rec.Code, called)
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":"o-1"}`))
	}))

	first := send(h, http.MethodPost, "/api/v1/orders", "abc", `{"items":[]}`)
	second := send(h, http.MethodPost, "/api/v1/orders/", "abc", `{"items":[]}`)

	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get("Content-Type") != "application/json" || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("unexpected replay headers %v", second.Header())
	}
	for _, ttl := range store.ttls {
		if ttl != criticalIdempotencyTTL {
			t.Fatalf("expected critical ttl, got %v", ttl)
		}
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send(h, http.MethodPost, "/api/v1/inventory/adjust", "xyz", `{"delta":1}`)
	rec := send(h, http.MethodPost, "/api/v1/inventory/adjust", "xyz", `{"delta":2}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyLeavesKeyFreeAfterRetryableFailure(t *testing.T) {
	store := newFakeStore()
	statuses := []int{http.StatusServiceUnavailable, http.StatusCreated}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	send(h, http.MethodPost, "/api/v1/orders/o-1/cancel", "retry-me", `{}`)
	rec := send(h, http.MethodPost, "/api/v1/orders/o-1/cancel", "retry-me", `{}`)

	if calls != 2 || rec.Code != http.StatusCreated {
		t.Fatalf("expected second attempt to run, calls=%d code=%d", calls, rec.Code)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected only the settled response stored, got %d", len(store.data))
	}
}

func TestIdempotencyIgnoresUnkeyedRoutes(t *testing.T) {
	store := newFakeStore()
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := send(h, http.MethodGet, "/api/v1/orders", "", "")
	if rec.Code != http.StatusOK || len(store.data) != 0 {
		t.Fatalf("expected passthrough, got %d with %d records", rec.Code, len(store.data))
	}
}
