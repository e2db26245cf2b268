package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/internal/pkg/apperr"
)

func doRequest(t *testing.T, h fiber.Handler) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/", h)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestOKEnvelope(t *testing.T) {
	status, body := doRequest(t, func(c *fiber.Ctx) error {
		return OK(c, fiber.Map{"id": 1}, "Fetched")
	})
	assert.Equal(t, 200, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(200), body["httpStatusCode"])
	assert.Equal(t, "Fetched", body["message"])
	_, hasTotal := body["totalCount"]
	assert.False(t, hasTotal)
}

func TestListCarriesTotalCount(t *testing.T) {
	status, body := doRequest(t, func(c *fiber.Ctx) error {
		return List(c, []int{1, 2}, 37, "Jobs")
	})
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(37), body["totalCount"])
}

func TestErrorMirrorsStatus(t *testing.T) {
	status, body := doRequest(t, func(c *fiber.Ctx) error {
		return Error(c, apperr.Invalid("Plan already purchased"))
	})
	assert.Equal(t, 400, status)
	assert.Equal(t, float64(400), body["httpStatusCode"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Plan already purchased", body["message"])
}

func TestErrorHidesInternalText(t *testing.T) {
	status, body := doRequest(t, func(c *fiber.Ctx) error {
		return Error(c, apperr.Internal(errors.New("duplicate entry 'x'"), "checkout: save subscription"))
	})
	assert.Equal(t, 500, status)
	assert.Equal(t, "Something went wrong", body["message"])
}
