package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics counts order, stock, payment and notification outcomes.
// A nil receiver or one built without a registerer records nothing.
type CommerceMetrics struct {
	ordersPlaced    *prometheus.CounterVec
	stockConflicts  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce counters on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders committed, by payment method.",
	}, []string{"payment_method"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_lock_conflicts_total",
		Help: "Inventory transactions that hit a lock conflict, by outcome.",
	}, []string{"outcome"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Payment outcomes applied to orders, by source and result.",
	}, []string{"source", "result"})
	gatewayCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Calls made to the payment gateway, by operation and result.",
	}, []string{"operation", "result"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notifications handed to the dispatcher, by kind and result.",
	}, []string{"kind", "result"})
	reg.MustRegister(ordersPlaced, stockConflicts, reconciliations, gatewayCalls, notifications)
	return &CommerceMetrics{
		ordersPlaced:    ordersPlaced,
		stockConflicts:  stockConflicts,
		reconciliations: reconciliations,
		gatewayCalls:    gatewayCalls,
		notifications:   notifications,
	}
}

func (c *CommerceMetrics) IncOrderPlaced(paymentMethod string) {
	if c == nil || c.ordersPlaced == nil {
		return
	}
	c.ordersPlaced.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (c *CommerceMetrics) IncStockConflict(outcome string) {
	if c == nil || c.stockConflicts == nil {
		return
	}
	c.stockConflicts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CommerceMetrics) IncReconciliation(source, result string) {
	if c == nil || c.reconciliations == nil {
		return
	}
	c.reconciliations.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

func (c *CommerceMetrics) IncGatewayCall(operation, result string) {
	if c == nil || c.gatewayCalls == nil {
		return
	}
	c.gatewayCalls.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (c *CommerceMetrics) IncNotification(kind, result string) {
	if c == nil || c.notifications == nil {
		return
	}
	c.notifications.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}
