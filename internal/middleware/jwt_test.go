package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authApp(cfg AuthConfig) *fiber.App {
	app := fiber.New()
	app.Get("/me", Auth(cfg), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"userId":   UserID(c),
			"username": Username(c),
			"guest":    c.Locals(LocalGuest),
		})
	})
	return app
}

func performAuth(t *testing.T, app *fiber.App, target string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	token, err := IssueToken(testSecret, "u1", "Alice", time.Hour)
	require.NoError(t, err)

	app := authApp(AuthConfig{Secret: testSecret})
	resp := performAuth(t, app, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	token, err := IssueToken(testSecret, "u1", "Alice", time.Hour)
	require.NoError(t, err)

	app := authApp(AuthConfig{Secret: testSecret})
	resp := performAuth(t, app, "/me?access_token="+token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	app := authApp(AuthConfig{Secret: testSecret})
	resp := performAuth(t, app, "/me", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("another-secret", "u1", "Alice", time.Hour)
	require.NoError(t, err)

	app := authApp(AuthConfig{Secret: testSecret})
	resp := performAuth(t, app, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, "u1", "Alice", -time.Minute)
	require.NoError(t, err)

	app := authApp(AuthConfig{Secret: testSecret})
	resp := performAuth(t, app, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMintsGuestIdentityWhenAllowed(t *testing.T) {
	app := authApp(AuthConfig{Secret: testSecret, AllowGuests: true})
	resp := performAuth(t, app, "/me?guest=1&username=Visitor", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthDeniesGuestsWhenDisabled(t *testing.T) {
	app := authApp(AuthConfig{Secret: testSecret, AllowGuests: false})
	resp := performAuth(t, app, "/me?guest=1", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
