// Package bootstrap assembles the order, payment and inventory services shared
// by the api and cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/kafka"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/paygateway"
)

// Commerce holds the wired domain services.
type Commerce struct {
	OrdersRepo orders.Repository
	Orders     orders.Service
	Reconciler *payments.Reconciler
	Inventory  *inventory.Service
	Notifier   notifications.Dispatcher

	producer *kafka.Producer
}

// NewCommerce wires the domain graph on top of an open database client. When
// brokers are configured, notifications go to Kafka and the producer loop is
// started on ctx; otherwise they are written to the log.
func NewCommerce(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.CommerceMetrics) (*Commerce, error) {
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, fmt.Errorf("config, logger and db client required")
	}

	c := &Commerce{}
	if cfg.Kafka.Enabled() {
		c.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic, cfg.Kafka.BufferSize, logg)
		c.producer.Start(ctx)
		dispatcher, err := notifications.NewKafkaDispatcher(c.producer, m)
		if err != nil {
			return nil, fmt.Errorf("kafka dispatcher: %w", err)
		}
		c.Notifier = dispatcher
	} else {
		logg.Warn(ctx, "kafka brokers not configured, notifications go to the log")
		c.Notifier = notifications.NewLogDispatcher(logg)
	}

	gateway, err := paygateway.NewClient(
		cfg.Gateway.SecretKey,
		paygateway.WithBaseURL(cfg.Gateway.BaseURL),
		paygateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("payment gateway client: %w", err)
	}

	conn := dbClient.DB()
	retrier := inventory.NewRetrier(cfg.Checkout.ReserveMaxRetries, cfg.Checkout.ReserveBackoff, m)
	ledger, err := inventory.NewLedger(conn, cfg.Checkout.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}
	catalogRepo := catalog.NewRepository(conn)
	builder, err := orders.NewBuilder(catalogRepo, orders.FlatPricing{
		ShippingMinor: cfg.Checkout.FlatShippingMinor,
		TaxRateBps:    cfg.Checkout.TaxRateBps,
	})
	if err != nil {
		return nil, fmt.Errorf("order builder: %w", err)
	}

	c.OrdersRepo = orders.NewRepository(conn)
	c.Orders, err = orders.NewService(orders.ServiceParams{
		Repo:     c.OrdersRepo,
		Tx:       dbClient,
		Retrier:  retrier,
		Ledger:   ledger,
		Builder:  builder,
		Gateway:  gateway,
		Notifier: c.Notifier,
		Metrics:  m,
		Logger:   logg,
		Config: orders.Config{
			Currency:           cfg.Checkout.Currency,
			CallbackURL:        cfg.Gateway.CallbackURL,
			MaxGatewayAttempts: cfg.Reconciliation.MaxGatewayAttempts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	c.Reconciler, err = payments.NewReconciler(payments.ReconcilerParams{
		Repo:     c.OrdersRepo,
		Tx:       dbClient,
		Retrier:  retrier,
		Gateway:  gateway,
		Notifier: c.Notifier,
		Metrics:  m,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment reconciler: %w", err)
	}

	c.Inventory, err = inventory.NewService(dbClient, retrier, ledger, catalogRepo, logg)
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}
	return c, nil
}

// Close flushes queued notifications.
func (c *Commerce) Close() {
	if c == nil || c.producer == nil {
		return
	}
	c.producer.Close()
	c.producer.WaitClosed()
}
