package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/gorm"
)

// claimQueuedSQL atomically flips a batch of due queued rows to processing.
// SKIP LOCKED keeps concurrent dispatcher instances from double-claiming.
const claimQueuedSQL = `
UPDATE notifications
SET status = 'processing', updated_at = NOW()
WHERE id IN (
    SELECT id FROM notifications
    WHERE status = 'queued'
      AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT ?
)
RETURNING *`

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByIdempotencyKey(ctx context.Context, projectID, idempotencyKey string) (*domain.Notification, error)
	ClaimQueuedBatch(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, nextAttemptAt time.Time) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetByIdempotencyKey(ctx context.Context, projectID, idempotencyKey string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND idempotency_key = ?", projectID, idempotencyKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// ClaimQueuedBatch claims up to limit due queued notifications, transitioning
// them to processing in the same statement. Claimed rows are returned oldest
// first.
func (r *GormNotificationRepo) ClaimQueuedBatch(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 1
	}

	var models []NotificationModel
	if err := r.db.WithContext(ctx).Raw(claimQueuedSQL, limit).Scan(&models).Error; err != nil {
		return nil, err
	}

	// RETURNING does not guarantee ordering; restore FIFO for the batch.
	sort.Slice(models, func(i, j int) bool {
		return models[i].CreatedAt.Before(models[j].CreatedAt)
	})

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string) error {
	return r.finishProcessing(ctx, id, domain.StatusSent, nil)
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string) error {
	return r.finishProcessing(ctx, id, domain.StatusFailed, nil)
}

// ScheduleRetry returns a processing row to queued with a future due time.
func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextAttemptAt time.Time) error {
	return r.finishProcessing(ctx, id, domain.StatusQueued, &nextAttemptAt)
}

func (r *GormNotificationRepo) finishProcessing(ctx context.Context, id string, status domain.Status, nextAttemptAt *time.Time) error {
	updates := map[string]any{
		"status":          status,
		"attempt_count":   gorm.Expr("attempt_count + 1"),
		"next_attempt_at": nextAttemptAt,
	}

	// Guard on the current status so terminal rows stay terminal.
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique-constraint insert
// failure, so an idempotency-key race can be told apart from a generic write
// error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
