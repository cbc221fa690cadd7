package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/paygateway"
)

const channelCash = "cash"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type retryRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, key inventory.StockKey, qty int64, entry inventory.Entry) (*inventory.Movement, error)
	Release(ctx context.Context, tx *gorm.DB, key inventory.StockKey, qty int64, reason enums.InventoryReason, entry inventory.Entry) (*inventory.Movement, error)
}

type aggregateBuilder interface {
	Build(ctx context.Context, input BuildInput) (*Aggregate, error)
}

type paymentInitializer interface {
	Initialize(ctx context.Context, req paygateway.InitializeRequest) (*paygateway.InitializeResult, error)
}

type orderMetrics interface {
	IncOrderPlaced(paymentMethod string)
	IncGatewayCall(operation, result string)
	IncReconciliation(source, result string)
}

// Service is the order lifecycle controller.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error)
	List(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderView, error)
	RetryPayment(ctx context.Context, actor Actor, orderID uuid.UUID) (*CreateResult, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.OrderStatus, note string) (*OrderView, error)
	ResumeGatewayInit(ctx context.Context, orderID uuid.UUID) error
	ExpireOrder(ctx context.Context, orderID uuid.UUID) error
}

// Config carries the checkout settings the lifecycle needs.
type Config struct {
	Currency           string
	CallbackURL        string
	MaxGatewayAttempts int
}

// ServiceParams wires the lifecycle controller.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Retrier  retryRunner
	Ledger   stockLedger
	Builder  aggregateBuilder
	Gateway  paymentInitializer
	Notifier notifications.Dispatcher
	Metrics  orderMetrics
	Logger   *logger.Logger
	Config   Config
}

// CreateInput is an order placement request.
type CreateInput struct {
	Actor             Actor
	ShippingAddressID uuid.UUID
	Lines             []LineRequest
	PaymentMethod     enums.PaymentMethod
	Notes             string
}

type service struct {
	repo     Repository
	tx       txRunner
	retrier  retryRunner
	ledger   stockLedger
	builder  aggregateBuilder
	gateway  paymentInitializer
	notifier notifications.Dispatcher
	metrics  orderMetrics
	logg     *logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewService builds the order lifecycle controller.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Retrier == nil {
		return nil, fmt.Errorf("retry runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if p.Builder == nil {
		return nil, fmt.Errorf("order builder required")
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
	cfg := p.Config
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.MaxGatewayAttempts <= 0 {
		cfg.MaxGatewayAttempts = 5
	}
	return &service{
		repo:     p.Repo,
		tx:       p.Tx,
		retrier:  p.Retrier,
		ledger:   p.Ledger,
		builder:  p.Builder,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	actor := input.Actor
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCard
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	email := strings.TrimSpace(actor.Email)
	if method == enums.PaymentMethodCard && email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required for card payments")
	}

	agg, err := s.builder.Build(ctx, BuildInput{
		UserID:            actor.UserID,
		ShippingAddressID: input.ShippingAddressID,
		Lines:             input.Lines,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orderID := uuid.New()
	reference := NewPaymentReference()

	order := &models.Order{
		ID:            orderID,
		UserID:        actor.UserID,
		CustomerEmail: email,
		TotalMinor:    agg.TotalMinor,
		Currency:      s.cfg.Currency,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		PaymentMethod: method,
		Version:       1,
		PlacedAt:      now,
	}
	txn := &models.PaymentTransaction{
		ID:          uuid.New(),
		OrderID:     orderID,
		Type:        enums.TransactionTypePayment,
		AmountMinor: agg.TotalMinor,
		Reference:   reference,
		Status:      enums.TransactionStatusInitiated,
	}
	if method == enums.PaymentMethodCashOnDelivery {
		channel := channelCash
		txn.Channel = &channel
		order.PaymentReference = &reference
	}

	lines := sortLines(agg.Lines)
	items := make([]models.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			VendorID:       line.VendorID,
			Quantity:       line.Quantity,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  line.SubtotalMinor,
			Status:         enums.OrderStatusPending,
		}
	}
	detail := &models.OrderDetail{
		OrderID:           orderID,
		ShippingAddressID: input.ShippingAddressID,
		ShippingMinor:     agg.ShippingMinor,
		TaxMinor:          agg.TaxMinor,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		detail.Notes = &notes
	}

	ctx = s.logg.WithOrderID(ctx, orderID.String())
	entry := inventory.Entry{ReferenceID: &orderID, ActorID: &actor.UserID}

	err = s.retrier.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.CreateOrder(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
			}
			for _, line := range lines {
				key := inventory.StockKey{ProductID: line.ProductID, VariantID: line.VariantID}
				if _, err := s.ledger.Reserve(ctx, tx, key, line.Quantity, entry); err != nil {
					return err
				}
			}
			if err := repo.CreateItems(ctx, items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
			}
			if err := repo.CreateDetail(ctx, detail); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order detail")
			}
			if err := repo.CreatePaymentTransaction(ctx, txn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
			}
			return nil
		})
	})
	if err != nil {
		return nil, asServiceError(err, "place order")
	}

	if s.metrics != nil {
		s.metrics.IncOrderPlaced(string(method))
	}
	s.logg.Info(ctx, "order placed")

	result := &CreateResult{}
	if method.UsesGateway() {
		authURL, err := s.initializePayment(ctx, order, txn)
		if err != nil {
			result.PaymentInitPending = true
		} else {
			result.AuthorizationURL = authURL
		}
	}

	s.dispatch(ctx, "order confirmation", func() error {
		return s.notifier.SendOrderConfirmation(ctx, order, order.UserID)
	})
	s.dispatch(ctx, "vendor new order", func() error {
		return s.notifier.NotifyVendors(ctx, enums.NotificationKindVendorNewOrder, order.ID, vendorIDs(items))
	})

	view, err := s.view(ctx, orderID, nil)
	if err != nil {
		return nil, err
	}
	result.Order = view
	return result, nil
}

// initializePayment opens the hosted checkout outside any transaction and then
// records the reference. A gateway failure leaves the order pending for the
// sweep and only bumps the attempt counter.
func (s *service) initializePayment(ctx context.Context, order *models.Order, txn *models.PaymentTransaction) (string, error) {
	ctx = s.logg.WithPaymentReference(ctx, txn.Reference)
	res, err := s.gateway.Initialize(ctx, paygateway.InitializeRequest{
		Email:       order.CustomerEmail,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Reference:   txn.Reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    map[string]any{"order_id": order.ID.String()},
	})
	if err != nil {
		s.recordGateway("initialize", "error")
		s.logg.Error(ctx, "payment gateway initialize failed", err)
		if uerr := s.repo.UpdateOrder(ctx, order.ID, map[string]any{
			"gateway_attempts": gorm.Expr("gateway_attempts + 1"),
		}); uerr != nil {
			s.logg.Error(ctx, "failed to record gateway attempt", uerr)
		} else {
			order.GatewayAttempts++
			order.Version++
		}
		return "", err
	}
	s.recordGateway("initialize", "ok")

	stored := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		// The order may have been paid, cancelled or re-initialized meanwhile.
		if current.OrderStatus != enums.OrderStatusPending || current.PaymentReference != nil {
			return nil
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"payment_reference": txn.Reference,
			"authorization_url": res.AuthorizationURL,
			"gateway_attempts":  gorm.Expr("gateway_attempts + 1"),
		}); err != nil {
			return err
		}
		locked, err := repo.LockPaymentByReference(ctx, txn.Reference)
		if err != nil {
			return err
		}
		if locked.Status == enums.TransactionStatusInitiated {
			if err := repo.UpdatePaymentTransaction(ctx, locked.ID, map[string]any{"status": enums.TransactionStatusPending}); err != nil {
				return err
			}
		}
		stored = true
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "failed to store payment reference", err)
		return res.AuthorizationURL, nil
	}
	if !stored {
		s.logg.Warn(ctx, "order changed during gateway initialize; reference not stored")
		return res.AuthorizationURL, nil
	}

	ref := txn.Reference
	authURL := res.AuthorizationURL
	order.PaymentReference = &ref
	order.AuthorizationURL = &authURL
	order.GatewayAttempts++
	order.Version++
	return res.AuthorizationURL, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	items, err := s.repo.FindItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}

	var vendorFilter *uuid.UUID
	switch {
	case actor.IsAdmin(), order.UserID == actor.UserID:
	case actor.IsVendor() && hasVendorItems(items, *actor.VendorID):
		vendorFilter = actor.VendorID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	detail, err := s.repo.FindDetail(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order detail")
	}
	return toView(order, items, detail, vendorFilter), nil
}

func (s *service) List(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, actor.UserID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	rows, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.PlacedAt, ID: o.ID}
	})
	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Orders = append(out.Orders, toSummary(row))
	}
	return out, nil
}

func (s *service) RetryPayment(ctx context.Context, actor Actor, orderID uuid.UUID) (*CreateResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var order *models.Order
	var txn *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if !actor.IsAdmin() && locked.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if locked.PaymentMethod != enums.PaymentMethodCard {
			return pkgerrors.New(pkgerrors.CodeValidation, "only card orders can retry payment")
		}
		if locked.OrderStatus != enums.OrderStatusPending || locked.PaymentStatus != enums.PaymentStatusFailed {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "payment can only be retried after a failure").
				WithDetails(map[string]any{"order_status": locked.OrderStatus, "payment_status": locked.PaymentStatus})
		}

		txn = &models.PaymentTransaction{
			ID:          uuid.New(),
			OrderID:     locked.ID,
			Type:        enums.TransactionTypePayment,
			AmountMinor: locked.TotalMinor,
			Reference:   NewPaymentReference(),
			Status:      enums.TransactionStatusInitiated,
		}
		if err := repo.CreatePaymentTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
		}
		if err := repo.UpdateOrder(ctx, locked.ID, map[string]any{
			"payment_status":    enums.PaymentStatusPending,
			"payment_reference": nil,
			"authorization_url": nil,
			"gateway_attempts":  0,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset payment state")
		}
		locked.PaymentStatus = enums.PaymentStatusPending
		locked.PaymentReference = nil
		locked.AuthorizationURL = nil
		locked.GatewayAttempts = 0
		locked.Version++
		order = locked
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "retry payment")
	}

	result := &CreateResult{}
	authURL, err := s.initializePayment(ctx, order, txn)
	if err != nil {
		result.PaymentInitPending = true
	} else {
		result.AuthorizationURL = authURL
	}

	view, err := s.view(ctx, orderID, nil)
	if err != nil {
		return nil, err
	}
	result.Order = view
	return result, nil
}

func (s *service) view(ctx context.Context, orderID uuid.UUID, vendorFilter *uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	items, err := s.repo.FindItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	detail, err := s.repo.FindDetail(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order detail")
	}
	return toView(order, items, detail, vendorFilter), nil
}

func (s *service) dispatch(ctx context.Context, what string, send func() error) {
	if err := send(); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "notification", what), "notification dispatch failed", err)
	}
}

func (s *service) recordGateway(operation, result string) {
	if s.metrics != nil {
		s.metrics.IncGatewayCall(operation, result)
	}
}

// sortLines orders stock keys so concurrent orders lock inventory rows in the
// same sequence.
func sortLines(lines []Line) []Line {
	out := append([]Line(nil), lines...)
	sort.SliceStable(out, func(i, j int) bool {
		return stockKey(out[i].ProductID, out[i].VariantID).String() < stockKey(out[j].ProductID, out[j].VariantID).String()
	})
	return out
}

func stockKey(productID uuid.UUID, variantID *uuid.UUID) inventory.StockKey {
	return inventory.StockKey{ProductID: productID, VariantID: variantID}
}

func vendorIDs(items []models.OrderItem) []uuid.UUID {
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

func hasVendorItems(items []models.OrderItem, vendorID uuid.UUID) bool {
	for _, item := range items {
		if item.VendorID == vendorID {
			return true
		}
	}
	return false
}

func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, internalMsg)
}

func asServiceError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
