package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// OwnerHeader carries the caller identity set by the upstream gateway.
	OwnerHeader = "X-User-ID"
	// OwnerLocalKey is the Fiber locals key holding the validated owner id.
	OwnerLocalKey = "owner_id"
)

// Owner rejects requests without a valid X-User-ID and stores the normalized id in locals.
// Authentication happens upstream; this only reads the identity it produced.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(OwnerHeader)
		id, err := uuid.Parse(raw)
		if raw == "" || err != nil {
			rid, _ := c.Locals(RequestIDLocalKey).(string)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"request_id": rid,
				"error": fiber.Map{
					"code":    "UNAUTHORIZED",
					"message": "missing or invalid " + OwnerHeader + " header",
				},
			})
		}
		c.Locals(OwnerLocalKey, id.String())
		return c.Next()
	}
}

// OwnerFromCtx returns the owner id stored by Owner, or "" when absent.
func OwnerFromCtx(c *fiber.Ctx) string {
	s, _ := c.Locals(OwnerLocalKey).(string)
	return s
}
