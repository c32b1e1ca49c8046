package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const userIDLocal = "user_id"

// Claims is the token payload issued by the external identity system.
// The pipeline only consumes the user id; memberships are resolved
// against the local reference tables, not trusted from the token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTAuth validates the bearer token and stores the caller's user id in
// fiber locals for the visibility gate.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
		if err != nil || !token.Valid || claims.UserID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(userIDLocal, claims.UserID)
		return c.Next()
	}
}

// CallerUserID reads the authenticated user id set by JWTAuth.
func CallerUserID(c *fiber.Ctx) int64 {
	if id, ok := c.Locals(userIDLocal).(int64); ok {
		return id
	}
	return 0
}
