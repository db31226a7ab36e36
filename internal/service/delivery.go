package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/ratelimit"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/template"
	"go.uber.org/zap"
)

const (
	baseRetryDelay       = time.Second
	maxRetryDelay        = 60 * time.Second
	maxRetryJitterMillis = 250
)

// DeliveryPipeline resolves the message body, invokes the provider, records
// the attempt, and moves the notification to its terminal state. Every
// failure is contained at the per-notification boundary.
type DeliveryPipeline struct {
	notifications repository.NotificationRepository
	templates     repository.TemplateRepository
	attempts      repository.AttemptRepository
	provider      provider.Provider
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	randIntn      func(n int) int
}

func NewDeliveryPipeline(
	notifications repository.NotificationRepository,
	templates repository.TemplateRepository,
	attempts repository.AttemptRepository,
	p provider.Provider,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*DeliveryPipeline, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryPipeline{
		notifications: notifications,
		templates:     templates,
		attempts:      attempts,
		provider:      p,
		rateLimiter:   rateLimiter,
		logger:        logger,
		now:           time.Now,
		randIntn:      rand.Intn,
	}, nil
}

func (p *DeliveryPipeline) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Deliver processes one claimed notification through to a terminal status.
// The returned error is for operator logging only; the notification itself
// always ends up sent, failed, or re-queued for retry.
func (p *DeliveryPipeline) Deliver(ctx context.Context, n domain.Notification) error {
	if p.metrics != nil {
		p.metrics.IncDispatcherInFlight(n.Channel)
		defer p.metrics.DecDispatcherInFlight(n.Channel)
	}

	if err := p.rateLimiter.Wait(ctx, n.Channel); err != nil {
		return p.fail(ctx, n, fmt.Errorf("rate limiter wait failed: %w", err))
	}

	message, err := p.resolveMessage(ctx, n)
	if err != nil {
		return p.fail(ctx, n, err)
	}

	attemptNo := n.AttemptCount + 1
	sendStart := p.now()
	resp, sendErr := p.provider.Send(ctx, n.Channel, n.Recipient, message)
	if p.metrics != nil {
		p.metrics.ObserveDeliveryDuration(n.Channel, p.now().Sub(sendStart))
	}

	if err := p.recordAttempt(ctx, n.ID, attemptNo, resp, sendErr); err != nil {
		return p.fail(ctx, n, fmt.Errorf("failed to record attempt: %w", err))
	}

	if sendErr == nil {
		if err := p.notifications.MarkSent(ctx, n.ID); err != nil {
			return fmt.Errorf("failed to mark notification %s sent: %w", n.ID, err)
		}
		if p.metrics != nil {
			p.metrics.IncNotificationSent(n.Channel)
		}
		p.logger.Info("notification sent",
			zap.String("notificationId", n.ID),
			zap.String("channel", n.Channel),
			zap.Int("attemptNo", attemptNo),
		)
		return nil
	}

	maxAttempts := n.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	if provider.IsTransient(sendErr) && attemptNo < maxAttempts {
		nextAttemptAt := p.now().Add(p.computeRetryDelay(attemptNo))
		if err := p.notifications.ScheduleRetry(ctx, n.ID, nextAttemptAt); err != nil {
			return fmt.Errorf("failed to schedule retry for notification %s: %w", n.ID, err)
		}
		if p.metrics != nil {
			p.metrics.IncRetryScheduled(n.Channel)
		}
		p.logger.Warn("delivery attempt failed, retry scheduled",
			zap.String("notificationId", n.ID),
			zap.Int("attemptNo", attemptNo),
			zap.Time("nextAttemptAt", nextAttemptAt),
			zap.Error(sendErr),
		)
		return nil
	}

	return p.fail(ctx, n, sendErr)
}

// resolveMessage renders the template body against the payload, or falls
// back to the serialized payload when no template is referenced or the
// referenced template is missing.
func (p *DeliveryPipeline) resolveMessage(ctx context.Context, n domain.Notification) (string, error) {
	if n.TemplateID == nil {
		return serializePayload(n.Payload)
	}

	tpl, err := p.templates.GetByID(ctx, *n.TemplateID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("template missing, falling back to raw payload",
			zap.String("notificationId", n.ID),
			zap.String("templateId", *n.TemplateID),
		)
		return serializePayload(n.Payload)
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch template %s: %w", *n.TemplateID, err)
	}

	return template.Render(tpl.Body, n.Payload), nil
}

func (p *DeliveryPipeline) fail(ctx context.Context, n domain.Notification, cause error) error {
	if err := p.notifications.MarkFailed(ctx, n.ID); err != nil {
		p.logger.Error("failed to mark notification failed",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return fmt.Errorf("delivery failed for notification %s: %v (failed to mark as failed: %w)", n.ID, cause, err)
	}

	reason := "delivery_error"
	if provider.IsTransient(cause) {
		reason = "retry_exhausted"
	}
	if p.metrics != nil {
		p.metrics.IncNotificationFailed(n.Channel, reason)
	}

	p.logger.Error("notification failed",
		zap.String("notificationId", n.ID),
		zap.String("channel", n.Channel),
		zap.Error(cause),
	)
	return nil
}

func (p *DeliveryPipeline) recordAttempt(
	ctx context.Context,
	notificationID string,
	attemptNo int,
	resp *provider.Response,
	sendErr error,
) error {
	status := domain.AttemptSuccess
	if sendErr != nil {
		status = domain.AttemptFailure
	}

	attempt := &domain.DeliveryAttempt{
		ID:               uuid.NewString(),
		NotificationID:   notificationID,
		AttemptNo:        attemptNo,
		Provider:         p.provider.Name(),
		ProviderResponse: serializeProviderResult(resp, sendErr),
		Status:           status,
		CreatedAt:        p.now().UTC(),
	}

	return p.attempts.Create(ctx, attempt)
}

func (p *DeliveryPipeline) computeRetryDelay(attemptNo int) time.Duration {
	if attemptNo < 1 {
		attemptNo = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNo; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if p.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = p.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func serializePayload(payload domain.Payload) (string, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload: %w", err)
	}
	return string(raw), nil
}

func serializeProviderResult(resp *provider.Response, sendErr error) string {
	if sendErr != nil {
		result := map[string]string{"error": sendErr.Error()}
		raw, err := json.Marshal(result)
		if err != nil {
			return sendErr.Error()
		}
		return string(raw)
	}

	if resp == nil {
		return "{}"
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(raw)
}
