package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller of a request
type UserContext struct {
	AccountID    uint   `json:"account_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Country      string `json:"country"`
	Via          string `json:"via"`
	CredentialID uint   `json:"credential_id,omitempty"`
	IsLoggedIn   bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetAccountID returns the caller's account id, or 0 when anonymous
func GetAccountID(c *fiber.Ctx) uint {
	return GetUserContext(c).AccountID
}

func GetRole(c *fiber.Ctx) string {
	return GetUserContext(c).Role
}
