package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
	"github.com/talentbridge/jobboard/internal/pkg/paadmin"
)

// Router registers one family of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries everything the route families need.
type Deps struct {
	Config  *config.Config
	Repos   *repository.Repositories
	Tokens  *auth.Tokens
	ATS     *ats.Service
	PAAdmin *paadmin.Service
	Billing *billing.Service
	Metrics *metrics.Collector
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// OpenAPIPath is served under /docs/api when the file exists.
	OpenAPIPath string
}

func InstallRouter(app *fiber.App, deps Deps) {
	// The HTTP router goes first so health and metrics stay outside the
	// authenticated groups.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
