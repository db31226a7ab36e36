package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
)

type fakeNotificationRepo struct {
	createFn              func(ctx context.Context, n *domain.Notification) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Notification, error)
	getByIdempotencyKeyFn func(ctx context.Context, projectID, key string) (*domain.Notification, error)
	claimQueuedBatchFn    func(ctx context.Context, limit int) ([]domain.Notification, error)
	markSentFn            func(ctx context.Context, id string) error
	markFailedFn          func(ctx context.Context, id string) error
	scheduleRetryFn       func(ctx context.Context, id string, nextAttemptAt time.Time) error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetByIdempotencyKey(ctx context.Context, projectID, key string) (*domain.Notification, error) {
	if f.getByIdempotencyKeyFn != nil {
		return f.getByIdempotencyKeyFn(ctx, projectID, key)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) ClaimQueuedBatch(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.claimQueuedBatchFn != nil {
		return f.claimQueuedBatchFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkSent(ctx context.Context, id string) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkFailed(ctx context.Context, id string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextAttemptAt time.Time) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, nextAttemptAt)
	}
	return nil
}

type fakeTemplateRepo struct {
	getByIDFn func(ctx context.Context, id string) (*domain.Template, error)
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type fakeAttemptRepo struct {
	createFn              func(ctx context.Context, a *domain.DeliveryAttempt) error
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, nil
}

type fakeProvider struct {
	name   string
	sendFn func(ctx context.Context, channel, recipient, message string) (*provider.Response, error)
}

func (f *fakeProvider) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake"
}

func (f *fakeProvider) Send(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, channel, recipient, message)
	}
	return &provider.Response{StatusCode: 200}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeDeliverer struct {
	deliverFn func(ctx context.Context, n domain.Notification) error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, n domain.Notification) error {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, n)
	}
	return nil
}
