package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

// BearerAuth requires a valid bearer token for an active account.
func BearerAuth(tokens *auth.Tokens, accounts repository.AccountRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return response.Fail(c, fiber.StatusUnauthorized, "login required")
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			if errors.Is(err, auth.ErrMissingSecret) {
				log.Errorf("[Auth] bearer auth: %v", err)
				return response.Fail(c, fiber.StatusInternalServerError, "authentication unavailable")
			}
			return response.Fail(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		account, err := accounts.GetByID(claims.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.Fail(c, fiber.StatusUnauthorized, "invalid or expired token")
			}
			log.Errorf("[Auth] bearer auth: load account %d: %v", claims.AccountID, err)
			return response.Fail(c, fiber.StatusInternalServerError, "authentication failed")
		}
		if !account.IsActive() {
			return response.Fail(c, fiber.StatusForbidden, "Account inactive")
		}

		setUserContext(c, account, usercontext.ViaBearer, 0)
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not listed. It must run after
// an authenticating middleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)
		if !userCtx.IsLoggedIn {
			return response.Fail(c, fiber.StatusUnauthorized, "login required")
		}
		for _, r := range roles {
			if userCtx.Role == r {
				return c.Next()
			}
		}
		return response.Fail(c, fiber.StatusForbidden, "insufficient permissions")
	}
}
