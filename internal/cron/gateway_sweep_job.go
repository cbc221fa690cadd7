package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultSweepGrace = 2 * time.Minute
	defaultBatchSize  = 100
)

type gatewayInitLister interface {
	ListAwaitingGatewayInit(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type gatewayInitResumer interface {
	ResumeGatewayInit(ctx context.Context, orderID uuid.UUID) error
}

// GatewaySweepJobParams configure the gateway initialization sweep.
type GatewaySweepJobParams struct {
	Logger    *logger.Logger
	Orders    gatewayInitLister
	Resumer   gatewayInitResumer
	Grace     time.Duration
	BatchSize int
}

// NewGatewaySweepJob builds the job that retries hosted checkout
// initialization for card orders still missing a payment reference.
func NewGatewaySweepJob(params GatewaySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Resumer == nil {
		return nil, fmt.Errorf("gateway resumer required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &gatewaySweepJob{
		logg:    params.Logger,
		orders:  params.Orders,
		resumer: params.Resumer,
		grace:   grace,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type gatewaySweepJob struct {
	logg    *logger.Logger
	orders  gatewayInitLister
	resumer gatewayInitResumer
	grace   time.Duration
	batch   int
	now     func() time.Time
}

func (j *gatewaySweepJob) Name() string { return "gateway-init-sweep" }

func (j *gatewaySweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	orders, err := j.orders.ListAwaitingGatewayInit(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query orders awaiting gateway init: %w", err)
	}

	var errs error
	resumed := 0
	for _, order := range orders {
		if err := j.resumer.ResumeGatewayInit(ctx, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		resumed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(orders),
		"resumed":    resumed,
	})
	j.logg.Info(logCtx, "gateway init sweep complete")
	return errs
}
