package accounts

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClaimsLocalKey is where the middleware stores validated claims on the
// request context.
const ClaimsLocalKey = "auth_claims"

// NewBearerMiddleware returns a fiber handler that requires a valid
// access token in the Authorization header. Validated claims are stored
// in Locals under ClaimsLocalKey and in the user context.
func NewBearerMiddleware(auther *Auther) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := extractBearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "Authentication credentials were not provided",
			})
		}

		claims, err := auther.SessionFromToken(raw)
		if err != nil {
			detail := "Token is invalid or expired"
			if IsMalformedError(err) {
				detail = "Token is malformed"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": detail,
			})
		}

		c.Locals(ClaimsLocalKey, claims)
		c.SetUserContext(WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

// ClaimsFromFiberCtx retrieves the claims the middleware stored.
func ClaimsFromFiberCtx(c *fiber.Ctx) (AuthClaims, bool) {
	raw := c.Locals(ClaimsLocalKey)
	if raw == nil {
		return nil, false
	}

	claims, ok := raw.(AuthClaims)
	return claims, ok
}

func extractBearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
