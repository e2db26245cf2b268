package controllers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/internal/pkg/apperr"
)

type sampleRequest struct {
	PlanType string `json:"planType" validate:"required,oneof=monthly yearly"`
	Quantity int    `json:"quantity" validate:"gte=0,max=100"`
}

func TestValidateStructMessages(t *testing.T) {
	err := validateStruct(&sampleRequest{})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, "PlanType is required", apperr.PublicMessage(err))

	err = validateStruct(&sampleRequest{PlanType: "weekly"})
	assert.Equal(t, "PlanType must be one of monthly yearly", apperr.PublicMessage(err))

	assert.NoError(t, validateStruct(&sampleRequest{PlanType: "monthly", Quantity: 3}))
}

func TestBindJSONAndPathID(t *testing.T) {
	app := fiber.New()
	app.Post("/items/:id", func(c *fiber.Ctx) error {
		id, err := pathID(c, "id")
		if err != nil {
			return c.Status(apperr.StatusCode(err)).SendString(err.Error())
		}
		var req sampleRequest
		if err := bindJSON(c, &req); err != nil {
			return c.Status(apperr.StatusCode(err)).SendString(err.Error())
		}
		return c.JSON(fiber.Map{"id": id, "planType": req.PlanType})
	})

	cases := []struct {
		path   string
		body   string
		status int
	}{
		{"/items/4", `{"planType":"yearly"}`, fiber.StatusOK},
		{"/items/0", `{"planType":"yearly"}`, fiber.StatusBadRequest},
		{"/items/abc", `{"planType":"yearly"}`, fiber.StatusBadRequest},
		{"/items/4", `{"planType":`, fiber.StatusBadRequest},
		{"/items/4", `{"quantity":2}`, fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", tc.path, strings.NewReader(tc.body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, "%s %s", tc.path, tc.body)
	}
}
