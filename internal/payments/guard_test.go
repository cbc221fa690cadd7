package payments

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
	err    error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "bz:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestWebhookGuardOnlyRemembersMarkedDeliveries(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	guard, err := NewWebhookGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	body := []byte(`{"event":"charge.success","data":{"reference":"bzr_1"}}`)
	ctx := context.Background()

	// checking alone claims nothing, so a copy arriving mid-flight is processed too
	for i := 0; i < 2; i++ {
		if seen, err := guard.Seen(ctx, body); err != nil || seen {
			t.Fatalf("check %d before mark: seen=%v err=%v", i, seen, err)
		}
	}

	if err := guard.Mark(ctx, body); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, err := guard.Seen(ctx, body); err != nil || !seen {
		t.Fatalf("after mark: seen=%v err=%v", seen, err)
	}
	if seen, _ := guard.Seen(ctx, []byte(`{"event":"charge.failed"}`)); seen {
		t.Fatalf("different body reported as seen")
	}
	if err := guard.Mark(ctx, body); err != nil {
		t.Fatalf("marking twice should be harmless: %v", err)
	}
}

func TestWebhookGuardErrors(t *testing.T) {
	if _, err := NewWebhookGuard(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	guard, _ := NewWebhookGuard(&memoryStore{values: map[string]string{}, err: errors.New("redis down")}, time.Hour)
	if _, err := guard.Seen(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected store error on check")
	}
	if err := guard.Mark(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected store error on mark")
	}
	if _, err := guard.Seen(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
}
