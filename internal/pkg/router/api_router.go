package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/talentbridge/jobboard/app/controllers"
	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/middleware"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

const (
	atsRequestsPerMinute = 120
	apiRequestsPerMinute = 60
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	atsCtl := controllers.NewATSController(h.deps.ATS)
	billingCtl := controllers.NewBillingController(h.deps.Billing)

	// Key auth runs before the limiter so quotas are per account.
	atsGroup := app.Group("/ats/v1",
		middleware.ATSKeyAuth(h.deps.Repos.Credential, h.deps.Repos.Account),
		h.limiter("ats", atsRequestsPerMinute),
	)
	atsGroup.Post("/jobs", atsCtl.HandlePostJobs)
	atsGroup.Get("/jobs", atsCtl.HandleListJobs)
	atsGroup.Put("/jobs/:id", atsCtl.HandleUpdateJob)
	atsGroup.Delete("/jobs/:id", atsCtl.HandleCloseJob)
	atsGroup.Get("/candidates", atsCtl.HandleSearchCandidates)
	atsGroup.Get("/candidates/:id/resume", atsCtl.HandleViewResume)
	atsGroup.Get("/subscription", atsCtl.HandleSubscription)

	subs := app.Group("/api/v1/subscriptions",
		middleware.BearerAuth(h.deps.Tokens, h.deps.Repos.Account),
		middleware.RequireRole(models.ROLE_EMPLOYER, models.ROLE_PA_MASTER),
		h.limiter("api", apiRequestsPerMinute),
	)
	subs.Post("/quote", billingCtl.HandleQuote)
	subs.Post("/checkout", billingCtl.HandleCheckout)
	subs.Post("/verify", billingCtl.HandleVerify)
	subs.Post("/addons", billingCtl.HandleAddOnCheckout)
	subs.Post("/addons/verify", billingCtl.HandleAddOnVerify)
	subs.Get("/current", billingCtl.HandleCurrent)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) limiter(prefix string, max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetAccountID(c); id != 0 {
				return prefix + ":" + itoa(id)
			}
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.Fail(c, fiber.StatusTooManyRequests, "Too many requests")
		},
	})
}
