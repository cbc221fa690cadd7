package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/paygateway"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookService interface {
	HandleWebhook(ctx context.Context, event paygateway.WebhookEvent) (*payments.Result, error)
}

type paymentWebhookGuard interface {
	Seen(ctx context.Context, body []byte) (bool, error)
	Mark(ctx context.Context, body []byte) error
}

type webhookAck struct {
	Received  bool             `json:"received"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Result    *payments.Result `json:"result,omitempty"`
}

// PaymentWebhook verifies and applies gateway charge notifications.
func PaymentWebhook(svc PaymentWebhookService, signingSecret string, guard paymentWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !paygateway.VerifySignature(signingSecret, payload, r.Header.Get(paygateway.SignatureHeader)) {
			if logg != nil {
				secCtx := logg.WithFields(ctx, map[string]any{
					"security_event": "webhook_signature_mismatch",
					"remote_addr":    r.RemoteAddr,
					"body_bytes":     len(payload),
				})
				logg.Warn(secCtx, "webhook.signature_invalid")
			}
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid signature"))
			return
		}

		var event paygateway.WebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"webhook_event": event.Event})
			if event.Data.Reference != "" {
				ctx = logg.WithPaymentReference(ctx, event.Data.Reference)
			}
		}

		seen, err := guard.Seen(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, webhookAck{Received: true, Duplicate: true})
			return
		}

		// marked only once applied, so a failed attempt is never acknowledged
		// to a concurrent copy of the same delivery
		result, err := svc.HandleWebhook(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Mark(ctx, payload); err != nil && logg != nil {
			logg.Error(ctx, "webhook.guard_mark_failed", err)
		}

		if logg != nil {
			logg.Info(ctx, "webhook.processed")
		}
		responses.WriteSuccess(w, webhookAck{Received: true, Result: result})
	}
}
