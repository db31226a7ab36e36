package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultBatchSize    = 5
	minConcurrency      = 1
)

// Deliverer processes a single claimed notification.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// Dispatcher polls the store for queued notifications, claims a bounded
// batch, and hands each row to the delivery pipeline. Several instances can
// run concurrently; the claim statement guarantees each row is processed by
// exactly one of them.
type Dispatcher struct {
	notifications repository.NotificationRepository
	pipeline      Deliverer
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	batchSize     int
	concurrency   int
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	pipeline Deliverer,
	interval time.Duration,
	batchSize int,
	concurrency int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("delivery pipeline is required")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if concurrency < minConcurrency {
		concurrency = minConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		notifications: notifications,
		pipeline:      pipeline,
		logger:        logger,
		interval:      interval,
		batchSize:     batchSize,
		concurrency:   concurrency,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start runs the polling loop until context cancellation. A drained queue
// waits one interval before the next poll; a non-empty batch polls again
// immediately.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.logger.Info("dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batchSize", d.batchSize),
		zap.Int("concurrency", d.concurrency),
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("dispatcher stopped")
			return nil
		}

		claimed, err := d.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("dispatcher stopped")
				return nil
			}
			// Store failure: log and retry on the next poll.
			d.logger.Error("dispatch cycle failed", zap.Error(err))
		}

		if claimed > 0 {
			continue
		}

		if err := waitInterval(ctx, d.interval); err != nil {
			d.logger.Info("dispatcher stopped")
			return nil
		}
	}
}

func (d *Dispatcher) cycle(ctx context.Context) (int, error) {
	batch, err := d.notifications.ClaimQueuedBatch(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim queued batch: %w", err)
	}

	if d.metrics != nil {
		d.metrics.ObserveDispatcherBatchSize(len(batch))
	}
	if len(batch) == 0 {
		return 0, nil
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i := range batch {
		notification := batch[i]
		g.Go(func() error {
			// Per-row failures must not abort processing of siblings.
			if err := d.pipeline.Deliver(groupCtx, notification); err != nil {
				d.logger.Error("delivery pipeline error",
					zap.String("notificationId", notification.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
	return len(batch), nil
}

func waitInterval(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
