// Package auth resolves the caller's project from an API key. Project
// identity is the tenant boundary for every notification operation.
package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/repository"
)

const (
	// HeaderAPIKey carries the caller's API key.
	HeaderAPIKey = "X-API-Key"

	projectIDLocal = "projectId"
)

// Middleware authenticates requests via the API key header and stores the
// resolved project id in request locals.
func Middleware(keys repository.APIKeyRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(HeaderAPIKey))
		if key == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing API key")
		}

		projectID, err := keys.GetProjectID(c.Context(), key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
			}
			return err
		}

		c.Locals(projectIDLocal, projectID)
		return c.Next()
	}
}

// ProjectID returns the authenticated project id for the request, or "" when
// the middleware did not run.
func ProjectID(c *fiber.Ctx) string {
	if value, ok := c.Locals(projectIDLocal).(string); ok {
		return value
	}
	return ""
}
