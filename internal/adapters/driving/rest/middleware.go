package rest

import (
	"github.com/gofiber/fiber/v2"
)

// userHeader carries the authenticated user's id. Authentication lives
// at the gateway; the API trusts this header.
const userHeader = "X-User-Id"

const userKey = "userID"

// requireUser rejects requests without a user identity.
func requireUser(c *fiber.Ctx) error {
	user := c.Get(userHeader)
	if user == "" {
		return newAPIError(fiber.StatusUnauthorized, "missing "+userHeader+" header")
	}
	c.Locals(userKey, user)
	return c.Next()
}

// currentUser returns the id set by requireUser.
func currentUser(c *fiber.Ctx) string {
	user, _ := c.Locals(userKey).(string)
	return user
}
