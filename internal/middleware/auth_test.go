package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proisp/workflow-driver/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpireHours: 1,
	}
}

func newProtectedApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", RequireAuth(cfg), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"client": c.Locals("api_client")})
	})
	return app
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	app := newProtectedApp(testConfig())

	req := httptest.NewRequest("GET", "/protected", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	app := newProtectedApp(testConfig())

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuthAcceptsIssuedToken(t *testing.T) {
	cfg := testConfig()
	app := newProtectedApp(cfg)

	token, err := GenerateToken("ops-cli", cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireAuthRejectsTokenSignedWithOtherSecret(t *testing.T) {
	cfg := testConfig()
	other := &config.Config{JWTSecret: "different-secret", JWTExpireHours: 1}
	app := newProtectedApp(cfg)

	token, err := GenerateToken("ops-cli", other)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
