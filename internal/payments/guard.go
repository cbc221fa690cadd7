package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

const webhookScope = "payment_webhook"

// WebhookGuard remembers webhook deliveries that were applied. The gateway has
// no event id, so the body hash stands in for one. A delivery is marked only
// after it was applied; concurrent copies of an unapplied delivery both reach
// the reconciler, which settles each reference once under its row lock.
type WebhookGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewWebhookGuard(store redis.IdempotencyStore, ttl time.Duration) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &WebhookGuard{store: store, ttl: ttl}, nil
}

// Seen reports whether body was already applied.
func (g *WebhookGuard) Seen(ctx context.Context, body []byte) (bool, error) {
	if len(body) == 0 {
		return false, errors.New("webhook body is required")
	}
	raw, err := g.store.Get(ctx, g.key(body))
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get webhook idempotency key: %w", err)
	}
	return raw != "", nil
}

// Mark records body as applied.
func (g *WebhookGuard) Mark(ctx context.Context, body []byte) error {
	if len(body) == 0 {
		return errors.New("webhook body is required")
	}
	if _, err := g.store.SetNX(ctx, g.key(body), "1", g.ttl); err != nil {
		return fmt.Errorf("set webhook idempotency key: %w", err)
	}
	return nil
}

func (g *WebhookGuard) key(body []byte) string {
	sum := sha256.Sum256(body)
	return g.store.IdempotencyKey(webhookScope, hex.EncodeToString(sum[:]))
}
