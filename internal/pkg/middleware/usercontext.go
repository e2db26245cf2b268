package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

// setUserContext stores the authenticated account in the request locals
// the controllers read.
func setUserContext(c *fiber.Ctx, account *models.Account, via string, credentialID uint) {
	userCtx := usercontext.UserContext{
		AccountID:    account.ID,
		Name:         account.Name,
		Role:         account.Role,
		Country:      account.Country,
		Via:          via,
		CredentialID: credentialID,
		IsLoggedIn:   true,
	}
	c.Locals(usercontext.KeyUserContext, userCtx)
	c.Locals(usercontext.KeyAccountID, account.ID)
	c.Locals(usercontext.KeyRole, account.Role)
	if credentialID != 0 {
		c.Locals(usercontext.KeyCredential, credentialID)
	}
}
