package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/internal/pkg/apperr"
)

var validate = validator.New()

// bindJSON decodes the request body into dst and validates its tags. The
// first failing field becomes the error message.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Invalid("invalid request body")
	}
	return validateStruct(dst)
}

func bindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return apperr.Invalid("invalid query parameters")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.Invalid("%s", fieldMessage(fieldErrs[0]))
	}
	return apperr.Invalid("%s", err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "min", "max", "gte", "lte":
		return field + " must satisfy " + fe.Tag() + "=" + fe.Param()
	default:
		return field + " is invalid (" + fe.Tag() + ")"
	}
}

// pathID parses a positive numeric route parameter.
func pathID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("invalid %s", name)
	}
	return uint(id), nil
}

type pageQuery struct {
	Skip  int `query:"skip" validate:"gte=0"`
	Limit int `query:"limit" validate:"gte=0,lte=100"`
}
