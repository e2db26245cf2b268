package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/talentbridge/jobboard/app/controllers"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	h.registerMetricsRoutes(app)
	h.registerDocs(app)
	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) registerMetricsRoutes(app *fiber.App) {
	if h.deps.Config == nil || h.deps.Config.Server.MetricsUser == "" {
		return
	}
	guard := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.Config.Server.MetricsUser: h.deps.Config.Server.MetricsPassword,
		},
	})
	app.Get("/metrics/prometheus", guard, adaptor.HTTPHandler(h.deps.Metrics.Handler()))
	app.Get("/metrics", guard, monitor.New())
}

func (h HttpRouter) registerDocs(app *fiber.App) {
	if h.deps.OpenAPIPath == "" {
		return
	}
	if _, err := os.Stat(h.deps.OpenAPIPath); err != nil {
		log.Warnf("[HTTP] OpenAPI document unavailable at %s: %v", h.deps.OpenAPIPath, err)
		return
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/",
		FilePath: h.deps.OpenAPIPath,
		Path:     "api",
		Title:    "Job Board API",
	}))
}

func (h HttpRouter) paController() *controllers.PAAdminController {
	return controllers.NewPAAdminController(h.deps.PAAdmin)
}
