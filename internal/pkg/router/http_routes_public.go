package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/app/controllers"
	"github.com/talentbridge/jobboard/app/models"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	billingCtl := controllers.NewBillingController(h.deps.Billing)
	paCtl := h.paController()

	// The gateway retries on anything but 200, so the webhook sits outside
	// the limiter and auth groups.
	app.Post("/webhooks/payments", billingCtl.HandleWebhook)

	app.Post("/pa/v1/login", paCtl.LoginHandler(models.ROLE_PA_MASTER))
	app.Post("/api/v1/auth/login", paCtl.LoginHandler(models.ROLE_EMPLOYER, models.ROLE_PA_MASTER))
}
