package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
)

// jsonbMap stores an arbitrary payload as a Postgres jsonb column.
type jsonbMap map[string]any

func (m jsonbMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *jsonbMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}

	return json.Unmarshal(raw, m)
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	ProjectID      string        `gorm:"type:uuid;not null;column:project_id"`
	Type           domain.Type   `gorm:"type:varchar(10);not null"`
	Channel        string        `gorm:"type:varchar(50);not null"`
	Recipient      string        `gorm:"type:varchar(255);not null"`
	Payload        jsonbMap      `gorm:"type:jsonb"`
	TemplateID     *string       `gorm:"type:varchar(100)"`
	Status         domain.Status `gorm:"type:varchar(20);not null"`
	IdempotencyKey *string       `gorm:"type:varchar(255)"`
	AttemptCount   int           `gorm:"not null;default:0"`
	MaxAttempts    int           `gorm:"not null;default:1"`
	NextAttemptAt  *time.Time    `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// TemplateModel is the persistence model for templates.
type TemplateModel struct {
	ID        string `gorm:"type:varchar(100);primaryKey"`
	Name      string `gorm:"type:varchar(100);not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

// AttemptModel is the persistence model for notification_logs.
type AttemptModel struct {
	ID               string               `gorm:"type:uuid;primaryKey"`
	NotificationID   string               `gorm:"type:uuid;not null"`
	AttemptNo        int                  `gorm:"not null"`
	Provider         string               `gorm:"type:varchar(50);not null"`
	ProviderResponse string               `gorm:"type:text"`
	Status           domain.AttemptStatus `gorm:"type:varchar(10);not null"`
	CreatedAt        time.Time
}

func (AttemptModel) TableName() string {
	return "notification_logs"
}

// APIKeyModel is the persistence model for api_keys.
type APIKeyModel struct {
	Key       string `gorm:"type:varchar(255);primaryKey;column:key"`
	ProjectID string `gorm:"type:uuid;not null;column:project_id"`
	CreatedAt time.Time
}

func (APIKeyModel) TableName() string {
	return "api_keys"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:             n.ID,
		ProjectID:      n.ProjectID,
		Type:           n.Type,
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Payload:        jsonbMap(n.Payload),
		TemplateID:     n.TemplateID,
		Status:         n.Status,
		IdempotencyKey: n.IdempotencyKey,
		AttemptCount:   n.AttemptCount,
		MaxAttempts:    n.MaxAttempts,
		NextAttemptAt:  n.NextAttemptAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:             m.ID,
		ProjectID:      m.ProjectID,
		Type:           m.Type,
		Channel:        m.Channel,
		Recipient:      m.Recipient,
		Payload:        domain.Payload(m.Payload),
		TemplateID:     m.TemplateID,
		Status:         m.Status,
		IdempotencyKey: m.IdempotencyKey,
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:        m.ID,
		Name:      m.Name,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *AttemptModel {
	if a == nil {
		return nil
	}

	return &AttemptModel{
		ID:               a.ID,
		NotificationID:   a.NotificationID,
		AttemptNo:        a.AttemptNo,
		Provider:         a.Provider,
		ProviderResponse: a.ProviderResponse,
		Status:           a.Status,
		CreatedAt:        a.CreatedAt,
	}
}

func attemptModelToDomain(m *AttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:               m.ID,
		NotificationID:   m.NotificationID,
		AttemptNo:        m.AttemptNo,
		Provider:         m.Provider,
		ProviderResponse: m.ProviderResponse,
		Status:           m.Status,
		CreatedAt:        m.CreatedAt,
	}
}
