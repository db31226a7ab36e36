package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/auth"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/service"
)

type EnqueueService interface {
	Send(ctx context.Context, req service.SendRequest) (*domain.Notification, error)
	Get(ctx context.Context, id, callerProjectID string) (*domain.Notification, error)
	Attempts(ctx context.Context, id, callerProjectID string) ([]domain.DeliveryAttempt, error)
}

type NotificationHandler struct {
	service EnqueueService
}

func NewNotificationHandler(service EnqueueService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("enqueue service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service EnqueueService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/api/v1/notifications")
	v1.Post("/send", h.Send)
	v1.Get("/:id", h.Get)
	v1.Get("/:id/attempts", h.Attempts)

	return nil
}

type sendRequest struct {
	Channel        string         `json:"channel"`
	Recipient      string         `json:"recipient"`
	TemplateID     *string        `json:"template_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
}

type sendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := h.service.Send(c.Context(), service.SendRequest{
		ProjectID:      auth.ProjectID(c),
		Channel:        strings.TrimSpace(req.Channel),
		Recipient:      strings.TrimSpace(req.Recipient),
		TemplateID:     req.TemplateID,
		Payload:        domain.Payload(req.Payload),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(sendResponse{
		ID:     notification.ID,
		Status: notification.Status.String(),
	})
}

type attemptResponse struct {
	AttemptNo        int       `json:"attempt_no"`
	Provider         string    `json:"provider"`
	Status           string    `json:"status"`
	ProviderResponse string    `json:"provider_response,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (h *NotificationHandler) Get(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	notification, err := h.service.Get(c.Context(), id, auth.ProjectID(c))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(notificationResponse{
		ID:        notification.ID,
		Channel:   notification.Channel,
		Recipient: notification.Recipient,
		Payload:   map[string]any(notification.Payload),
		Status:    notification.Status.String(),
		CreatedAt: notification.CreatedAt,
	})
}

func (h *NotificationHandler) Attempts(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	attempts, err := h.service.Attempts(c.Context(), id, auth.ProjectID(c))
	if err != nil {
		return err
	}

	response := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		response = append(response, attemptResponse{
			AttemptNo:        attempt.AttemptNo,
			Provider:         attempt.Provider,
			Status:           attempt.Status.String(),
			ProviderResponse: attempt.ProviderResponse,
			CreatedAt:        attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response)
}
