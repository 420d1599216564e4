package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Instaken/realtimechat-app/internal/utils"
)

// Identity claims resolved by the auth middleware and stored in locals.
const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
	LocalGuest    = "is_guest"
)

// AuthConfig customises the JWT middleware.
type AuthConfig struct {
	Secret string
	// AllowGuests mints an ephemeral guest identity when no token is
	// presented and the request opts in with guest=1.
	AllowGuests bool
}

// Auth returns a middleware that validates JWT bearer tokens and resolves the
// caller's identity. Websocket clients that cannot set headers may pass the
// token via the access_token query parameter instead.
func Auth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get("Authorization"))
		if tokenString == "" {
			tokenString = strings.TrimSpace(c.Query("access_token"))
		}

		if tokenString == "" {
			if cfg.AllowGuests && c.Query("guest") == "1" {
				id := "guest_" + uuid.NewString()
				c.Locals(LocalUserID, id)
				c.Locals(LocalUsername, guestUsername(c.Query("username")))
				c.Locals(LocalGuest, true)
				return c.Next()
			}
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID := claimString(claims, "sub", "user_id", "id")
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token missing subject")
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUsername, claimString(claims, "username", "name"))
		c.Locals(LocalGuest, false)

		return c.Next()
	}
}

// IssueToken signs an identity token for userID. Used by the guest upgrade
// path and by the terminal client in development.
func IssueToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserID returns the authenticated user id bound to the request.
func UserID(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUserID).(string); ok {
		return value
	}
	return ""
}

// Username returns the authenticated display name bound to the request.
func Username(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUsername).(string); ok {
		return value
	}
	return ""
}

func bearerToken(header string) string {
	const bearer = "Bearer "
	if header == "" || !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			switch v := value.(type) {
			case string:
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					return trimmed
				}
			case float64:
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}

func guestUsername(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "Anonymous"
	}
	if len(requested) > 64 {
		requested = requested[:64]
	}
	return requested
}
