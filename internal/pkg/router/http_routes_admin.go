package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	paCtl := h.paController()

	pa := app.Group("/pa/v1",
		middleware.BearerAuth(h.deps.Tokens, h.deps.Repos.Account),
		middleware.RequireRole(models.ROLE_PA_MASTER),
	)
	pa.Get("/dashboard", paCtl.HandleDashboard)
	pa.Get("/users", paCtl.HandleListUsers)
	pa.Post("/users", paCtl.HandleCreateUser)
	pa.Put("/users/:id", paCtl.HandleUpdateUser)
	pa.Patch("/users/:id/status", paCtl.HandleSetUserStatus)
	pa.Delete("/users/:id", paCtl.HandleDeleteUser)
}
