package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 1

// SendRequest carries an accepted send request. ProjectID comes from the
// caller's authenticated identity, never from the request body.
type SendRequest struct {
	ProjectID      string
	Channel        string
	Recipient      string
	TemplateID     *string
	Payload        domain.Payload
	IdempotencyKey *string
}

// EnqueueService accepts send requests and persists them in queued state,
// enforcing at-most-one notification per (project, idempotency key).
type EnqueueService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	logger        *zap.Logger
	maxAttempts   int
}

func NewEnqueueService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	maxAttempts int,
	logger *zap.Logger,
) (*EnqueueService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EnqueueService{
		notifications: notifications,
		attempts:      attempts,
		logger:        logger,
		maxAttempts:   maxAttempts,
	}, nil
}

// Send persists a new queued notification, or returns the existing record
// verbatim when the idempotency key was seen before. The unique index on
// (project_id, idempotency_key) is the source of truth: a concurrent
// duplicate insert is resolved by re-reading the winner.
func (s *EnqueueService) Send(ctx context.Context, req SendRequest) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	key := normalizeOptionalString(req.IdempotencyKey)
	if key != nil {
		existing, err := s.notifications.GetByIdempotencyKey(ctx, req.ProjectID, *key)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
	}

	templateID := normalizeOptionalString(req.TemplateID)
	notification := &domain.Notification{
		ID:             uuid.NewString(),
		ProjectID:      strings.TrimSpace(req.ProjectID),
		Type:           domain.TypeFor(templateID),
		Channel:        strings.TrimSpace(req.Channel),
		Recipient:      strings.TrimSpace(req.Recipient),
		Payload:        req.Payload,
		TemplateID:     templateID,
		Status:         domain.StatusQueued,
		IdempotencyKey: key,
		MaxAttempts:    s.maxAttempts,
	}
	if err := notification.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		if key != nil && repository.IsUniqueViolation(err) {
			winner, readErr := s.notifications.GetByIdempotencyKey(ctx, notification.ProjectID, *key)
			if readErr != nil {
				return nil, fmt.Errorf("failed to load existing notification after idempotency conflict: %w", readErr)
			}
			s.logger.Info("idempotency conflict resolved",
				zap.String("existingId", winner.ID),
				zap.String("projectId", notification.ProjectID),
			)
			return winner, nil
		}
		return nil, err
	}

	return notification, nil
}

// Get returns a notification snapshot. Ids are not secret; project ownership
// is the access boundary.
func (s *EnqueueService) Get(ctx context.Context, id, callerProjectID string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	if notification.ProjectID != callerProjectID {
		return nil, fmt.Errorf("%w: notification belongs to another project", domain.ErrForbidden)
	}

	return notification, nil
}

// Attempts returns the delivery attempt log for a notification the caller
// owns, oldest attempt first.
func (s *EnqueueService) Attempts(ctx context.Context, id, callerProjectID string) ([]domain.DeliveryAttempt, error) {
	if _, err := s.Get(ctx, id, callerProjectID); err != nil {
		return nil, err
	}
	return s.attempts.GetByNotificationID(ctx, strings.TrimSpace(id))
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
