package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/auth"
	"github.com/reelsched/api/internal/logging"
)

func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c))
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env.Error.Code
}

func TestAuthenticate(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret", time.Hour)
	app := fiber.New()
	app.Get("/me", Authenticate(verifier), whoami)

	token, err := verifier.Issue("user-7", "u7@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, fiber.StatusUnauthorized},
		{"bad token", "Bearer not-a-jwt", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"lowercase scheme", "bearer " + token, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			if tc.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "user-7", string(body))
			} else {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp.Body))
			}
		})
	}
}

func TestGateway(t *testing.T) {
	app := fiber.New()
	app.Get("/me", Gateway(), whoami)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-User-Id", "gw-user")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "gw-user", string(body))
}

func TestRateLimiter_DisabledWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(nil, logging.Nop())
	app := fiber.New()
	app.Get("/x", Gateway(), rl.CreateVideoLimit(1), whoami)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/x", nil)
		req.Header.Set("X-User-Id", "u")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}
