package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/utils"
)

const (
	sessionContextKey   = "currentSession"
	sessionIDContextKey = "currentSessionID"
)

// SessionMiddleware binds the session named by the bearer token to the request.
// Requests without a valid token get an anonymous session; services decide whether that is enough.
func SessionMiddleware(secret string, provider session.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(sessionContextKey, session.Store(session.Anonymous{}))

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Next()
		}

		sessionID, err := utils.ParseToken(secret, parts[1])
		if err != nil {
			return c.Next()
		}

		c.Locals(sessionContextKey, provider.Session(sessionID))
		c.Locals(sessionIDContextKey, sessionID)
		return c.Next()
	}
}

// CurrentSession returns the session bound by SessionMiddleware.
func CurrentSession(c *fiber.Ctx) session.Store {
	if s, ok := c.Locals(sessionContextKey).(session.Store); ok {
		return s
	}
	return session.Anonymous{}
}

// CurrentSessionID returns the id of the bound session, or "" for anonymous requests.
func CurrentSessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(sessionIDContextKey).(string)
	return id
}
