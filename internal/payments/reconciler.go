// Package payments settles payment transactions from gateway verification
// calls and signed webhooks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/paygateway"
)

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"

	reasonAmountMismatch   = "amount_mismatch"
	reasonDeclined         = "declined"
	reasonDuplicatePayment = "duplicate_payment"
)

// Gateway is the verification side of the payment gateway.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*paygateway.VerifyResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type retryRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

type reconcileMetrics interface {
	IncReconciliation(source, result string)
	IncGatewayCall(operation, result string)
}

// Outcome is a settled gateway result for one reference.
type Outcome struct {
	Success bool
	// AmountMinor is the amount the gateway reports, when it reports one.
	AmountMinor *int64
	Channel     string
	Reason      string
	Source      string
}

// Result is the payment state after reconciliation.
type Result struct {
	OrderID           uuid.UUID               `json:"order_id"`
	Reference         string                  `json:"reference"`
	TransactionStatus enums.TransactionStatus `json:"transaction_status"`
	PaymentStatus     enums.PaymentStatus     `json:"payment_status"`
	OrderStatus       enums.OrderStatus       `json:"order_status"`
	Version           int                     `json:"version"`
	Applied           bool                    `json:"applied"`
}

// ReconcilerParams wires the reconciler.
type ReconcilerParams struct {
	Repo     orders.Repository
	Tx       txRunner
	Retrier  retryRunner
	Gateway  Gateway
	Notifier notifications.Dispatcher
	Metrics  reconcileMetrics
	Logger   *logger.Logger
}

// Reconciler converges verify calls and webhooks on one idempotent apply step.
type Reconciler struct {
	repo     orders.Repository
	tx       txRunner
	retrier  retryRunner
	gateway  Gateway
	notifier notifications.Dispatcher
	metrics  reconcileMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Retrier == nil {
		return nil, fmt.Errorf("retry runner required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		repo:     p.Repo,
		tx:       p.Tx,
		retrier:  p.Retrier,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// Verify asks the gateway for the state of reference and applies a settled
// answer. Pending answers return the stored state untouched.
func (r *Reconciler) Verify(ctx context.Context, actor orders.Actor, reference string) (*Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	ctx = r.logg.WithPaymentReference(ctx, reference)

	txn, err := r.repo.FindPaymentByReference(ctx, reference)
	if err != nil {
		return nil, transactionNotFound(err)
	}
	order, err := r.repo.FindOrder(ctx, txn.OrderID)
	if err != nil {
		return nil, transactionNotFound(err)
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}

	res, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		r.recordGateway("verify", "error")
		return nil, err
	}
	r.recordGateway("verify", "ok")

	var outcome Outcome
	switch res.Status {
	case paygateway.StatusSuccess:
		amount := res.AmountMinor
		outcome = Outcome{Success: true, AmountMinor: &amount, Channel: res.Channel, Source: SourceVerify}
	case paygateway.StatusFailed, paygateway.StatusReversed:
		outcome = Outcome{Channel: res.Channel, Reason: failureReason(res.GatewayResponse), Source: SourceVerify}
	default:
		r.recordOutcome(SourceVerify, res.Status)
		return resultFor(order, txn, false), nil
	}
	return r.apply(ctx, reference, outcome)
}

// HandleWebhook applies a verified webhook event. Events other than charge
// success and failure are acknowledged with a nil result.
func (r *Reconciler) HandleWebhook(ctx context.Context, event paygateway.WebhookEvent) (*Result, error) {
	var outcome Outcome
	switch event.Event {
	case paygateway.EventChargeSuccess:
		outcome = Outcome{Success: true, AmountMinor: event.Data.Amount, Channel: event.Data.Channel, Source: SourceWebhook}
	case paygateway.EventChargeFailed:
		outcome = Outcome{Channel: event.Data.Channel, Reason: failureReason(event.Data.GatewayResponse), Source: SourceWebhook}
	default:
		r.logg.Info(r.logg.WithField(ctx, "event", event.Event), "ignoring payment webhook event")
		r.recordOutcome(SourceWebhook, "ignored")
		return nil, nil
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return r.apply(r.logg.WithPaymentReference(ctx, reference), reference, outcome)
}

// settlement is what apply decided inside the transaction.
type settlement struct {
	order   *models.Order
	txn     *models.PaymentTransaction
	applied bool
	notify  string
	reason  string
	vendors []uuid.UUID
}

const (
	notifyNone     = ""
	notifyReceived = "received"
	notifyFailed   = "failed"
)

func (r *Reconciler) apply(ctx context.Context, reference string, outcome Outcome) (*Result, error) {
	var st settlement
	err := r.retrier.Run(ctx, func(ctx context.Context) error {
		st = settlement{}
		return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return r.settle(ctx, tx, reference, outcome, &st)
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile payment")
	}

	ctx = r.logg.WithOrderID(ctx, st.order.ID.String())
	if !st.applied {
		r.logg.Info(ctx, "payment outcome already recorded")
		r.recordOutcome(outcome.Source, "duplicate")
		return resultFor(st.order, st.txn, false), nil
	}

	switch st.notify {
	case notifyReceived:
		r.recordOutcome(outcome.Source, "success")
		r.logg.Info(ctx, "payment confirmed")
		details := r.details(st)
		r.dispatch(ctx, "payment received", func() error {
			return r.notifier.SendPaymentReceived(ctx, st.order, st.order.UserID, details)
		})
		r.dispatch(ctx, "vendor order paid", func() error {
			return r.notifier.NotifyVendors(ctx, enums.NotificationKindVendorOrderPaid, st.order.ID, st.vendors)
		})
	case notifyFailed:
		r.recordOutcome(outcome.Source, "failed")
		r.logg.Warn(ctx, "payment failed")
		details := r.details(st)
		r.dispatch(ctx, "payment failed", func() error {
			return r.notifier.SendPaymentFailed(ctx, st.order, st.order.UserID, details)
		})
	default:
		r.recordOutcome(outcome.Source, "recorded")
		r.logg.Warn(ctx, "payment settled without changing the order")
	}
	return resultFor(st.order, st.txn, true), nil
}

// settle runs with the transaction row locked first and the order second, the
// same order every writer of these rows uses.
func (r *Reconciler) settle(ctx context.Context, tx *gorm.DB, reference string, outcome Outcome, st *settlement) error {
	repo := r.repo.WithTx(tx)
	txn, err := repo.LockPaymentByReference(ctx, reference)
	if err != nil {
		return transactionNotFound(err)
	}
	if txn.Type != enums.TransactionTypePayment {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference does not identify a payment")
	}
	st.txn = txn

	if txn.Status == enums.TransactionStatusSuccess ||
		(!outcome.Success && txn.Status == enums.TransactionStatusFailed) {
		order, err := repo.FindOrder(ctx, txn.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		st.order = order
		return nil
	}

	order, err := repo.LockOrder(ctx, txn.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	st.order = order
	st.applied = true

	if outcome.Success && outcome.AmountMinor != nil && *outcome.AmountMinor != txn.AmountMinor {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"expected_amount": txn.AmountMinor,
			"reported_amount": *outcome.AmountMinor,
		}), "payment amount mismatch")
		outcome = Outcome{Channel: outcome.Channel, Reason: reasonAmountMismatch, Source: outcome.Source}
	}

	if outcome.Success {
		return r.settleSuccess(ctx, tx, order, txn, outcome, st)
	}
	return r.settleFailure(ctx, tx, order, txn, outcome, st)
}

func (r *Reconciler) settleSuccess(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction, outcome Outcome, st *settlement) error {
	repo := r.repo.WithTx(tx)

	if order.PaymentStatus == enums.PaymentStatusPaid {
		// Another attempt already paid this order; the extra capture goes back.
		if err := r.updateTransaction(ctx, repo, txn, enums.TransactionStatusFailed, outcome.Channel, reasonDuplicatePayment); err != nil {
			return err
		}
		return r.refund(ctx, repo, order.ID, txn.AmountMinor)
	}

	if err := r.updateTransaction(ctx, repo, txn, enums.TransactionStatusSuccess, outcome.Channel, ""); err != nil {
		return err
	}
	if order.OrderStatus == enums.OrderStatusCancelled {
		return r.refund(ctx, repo, order.ID, txn.AmountMinor)
	}

	now := r.now().UTC()
	updates := map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        now,
	}
	if order.OrderStatus == enums.OrderStatusPending {
		updates["order_status"] = enums.OrderStatusProcessing
		order.OrderStatus = enums.OrderStatusProcessing
	}
	if order.PaymentReference == nil {
		updates["payment_reference"] = txn.Reference
		ref := txn.Reference
		order.PaymentReference = &ref
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaidAt = &now
	order.Version++

	items, err := repo.FindItems(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	st.vendors = distinctVendors(items)
	st.notify = notifyReceived
	return nil
}

func (r *Reconciler) settleFailure(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction, outcome Outcome, st *settlement) error {
	repo := r.repo.WithTx(tx)
	if err := r.updateTransaction(ctx, repo, txn, enums.TransactionStatusFailed, outcome.Channel, outcome.Reason); err != nil {
		return err
	}
	st.reason = outcome.Reason
	if order.PaymentStatus == enums.PaymentStatusPaid || order.OrderStatus == enums.OrderStatusCancelled {
		return nil
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusFailed,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
	}
	order.PaymentStatus = enums.PaymentStatusFailed
	order.Version++
	st.notify = notifyFailed
	return nil
}

func (r *Reconciler) updateTransaction(ctx context.Context, repo orders.Repository, txn *models.PaymentTransaction, status enums.TransactionStatus, channel, reason string) error {
	updates := map[string]any{"status": status}
	if channel != "" {
		updates["channel"] = channel
		txn.Channel = &channel
	}
	if reason != "" {
		updates["failure_reason"] = reason
		txn.FailureReason = &reason
	}
	if err := repo.UpdatePaymentTransaction(ctx, txn.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment transaction")
	}
	txn.Status = status
	return nil
}

func (r *Reconciler) refund(ctx context.Context, repo orders.Repository, orderID uuid.UUID, amount int64) error {
	refund := &models.PaymentTransaction{
		ID:          uuid.New(),
		OrderID:     orderID,
		Type:        enums.TransactionTypeRefund,
		AmountMinor: amount,
		Reference:   orders.NewRefundReference(),
		Status:      enums.TransactionStatusPending,
	}
	if err := repo.CreatePaymentTransaction(ctx, refund); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	return nil
}

func (r *Reconciler) details(st settlement) notifications.PaymentDetails {
	details := notifications.PaymentDetails{
		Reference:   st.txn.Reference,
		AmountMinor: st.txn.AmountMinor,
		Currency:    st.order.Currency,
		Reason:      st.reason,
	}
	if st.txn.Channel != nil {
		details.Channel = *st.txn.Channel
	}
	return details
}

func (r *Reconciler) dispatch(ctx context.Context, what string, send func() error) {
	if err := send(); err != nil {
		r.logg.Error(r.logg.WithField(ctx, "notification", what), "notification dispatch failed", err)
	}
}

func (r *Reconciler) recordOutcome(source, result string) {
	if r.metrics != nil {
		r.metrics.IncReconciliation(source, result)
	}
}

func (r *Reconciler) recordGateway(operation, result string) {
	if r.metrics != nil {
		r.metrics.IncGatewayCall(operation, result)
	}
}

func resultFor(order *models.Order, txn *models.PaymentTransaction, applied bool) *Result {
	return &Result{
		OrderID:           order.ID,
		Reference:         txn.Reference,
		TransactionStatus: txn.Status,
		PaymentStatus:     order.PaymentStatus,
		OrderStatus:       order.OrderStatus,
		Version:           order.Version,
		Applied:           applied,
	}
}

func transactionNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
}

func failureReason(gatewayResponse string) string {
	if s := strings.TrimSpace(gatewayResponse); s != "" {
		return s
	}
	return reasonDeclined
}

func distinctVendors(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		out = append(out, item.VendorID)
	}
	return out
}
