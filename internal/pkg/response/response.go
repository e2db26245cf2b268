package response

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/internal/pkg/apperr"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body every handler returns. HTTPStatusCode always
// mirrors the real response status.
type Envelope struct {
	Data           any    `json:"data"`
	Message        string `json:"message"`
	Status         string `json:"status"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	TotalCount     *int64 `json:"totalCount,omitempty"`
}

func OK(c *fiber.Ctx, data any, message string) error {
	return write(c, fiber.StatusOK, Envelope{Data: data, Message: message, Status: StatusSuccess})
}

func Created(c *fiber.Ctx, data any, message string) error {
	return write(c, fiber.StatusCreated, Envelope{Data: data, Message: message, Status: StatusSuccess})
}

// List responds with a page of records and the count of all matches.
func List(c *fiber.Ctx, data any, total int64, message string) error {
	return write(c, fiber.StatusOK, Envelope{Data: data, Message: message, Status: StatusSuccess, TotalCount: &total})
}

// Fail responds with an explicit status and client-facing message.
func Fail(c *fiber.Ctx, status int, message string) error {
	return write(c, status, Envelope{Message: message, Status: StatusError})
}

// Error classifies err, logs internal failures with their operation context
// and writes the matching envelope.
func Error(c *fiber.Ctx, err error) error {
	status := apperr.StatusCode(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return write(c, status, Envelope{Message: apperr.PublicMessage(err), Status: StatusError})
}

func write(c *fiber.Ctx, status int, env Envelope) error {
	env.HTTPStatusCode = status
	return c.Status(status).JSON(env)
}
