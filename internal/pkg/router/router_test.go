package router

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository/memory"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
	"github.com/talentbridge/jobboard/internal/pkg/paadmin"
)

type routerFixture struct {
	app    *fiber.App
	mr     *miniredis.Miniredis
	apiKey string
	secret string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.New()
	repos := store.Repositories()
	employer := store.PutAccount(models.Account{Name: "Acme", Email: "hr@acme.test", Role: models.ROLE_EMPLOYER, Status: models.STATUS_ACTIVE, Country: "IN"})
	master := models.Account{Name: "Bright", Email: "owner@bright.test", Role: models.ROLE_PA_MASTER, Status: models.STATUS_ACTIVE, Country: "IN", AgencyType: models.AGENCY_PA}
	require.NoError(t, master.SetPassword("correct horse"))
	store.PutAccount(master)

	cred, secret, err := models.IssueAPICredential(employer.ID, "acc_acme", "ats")
	require.NoError(t, err)
	require.NoError(t, repos.Credential.Create(cred))

	cfg := &config.Config{
		Environment: config.EnvDevelopment,
		Server:      config.ServerConfig{MetricsUser: "ops", MetricsPassword: "s3cret"},
	}
	tokens := auth.NewTokens(config.AuthConfig{JWTSecret: "router-secret", Issuer: "jobboard"})
	collector := metrics.New()
	billingSvc := billing.NewService(billing.Deps{
		Repos:   repos,
		Gateway: billing.NewRazorpayClient(config.GatewayConfig{KeyID: "rzp_test", KeySecret: "key", WebhookSecret: "whsec"}),
		Metrics: collector,
	}, billing.Options{Environment: config.EnvDevelopment})

	app := fiber.New()
	InstallRouter(app, Deps{
		Config:         cfg,
		Repos:          repos,
		Tokens:         tokens,
		ATS:            ats.NewService(repos, billingSvc, collector),
		PAAdmin:        paadmin.NewService(repos, tokens, nil),
		Billing:        billingSvc,
		Metrics:        collector,
		LimiterStorage: NewLimiterStorage(client),
		OpenAPIPath:    "testdata/missing.yml",
	})
	return &routerFixture{app: app, mr: mr, apiKey: cred.APIKey, secret: secret}
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t)
	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsRequireBasicAuth(t *testing.T) {
	f := newRouterFixture(t)

	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics/prometheus", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics/prometheus", nil)
	req.SetBasicAuth("ops", "s3cret")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestDocsSkippedWithoutDocument(t *testing.T) {
	f := newRouterFixture(t)
	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/docs/api", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestATSGroupRequiresKeys(t *testing.T) {
	f := newRouterFixture(t)

	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/ats/v1/jobs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/ats/v1/jobs", nil)
	req.Header.Set("X-API-Key", f.apiKey)
	req.Header.Set("X-Secret-Key", f.secret)
	req.Header.Set("X-Account-Key", "acc_acme")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, f.mr.DB(limiterDatabase).Keys())
}

func TestLoginIsOutsideBearerGroup(t *testing.T) {
	f := newRouterFixture(t)

	body, _ := json.Marshal(map[string]string{"email": "owner@bright.test", "password": "correct horse"})
	req := httptest.NewRequest(fiber.MethodPost, "/pa/v1/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(fiber.MethodGet, "/pa/v1/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/subscriptions/current", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookAlwaysAcknowledged(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/payments", strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLimiterRejectsOverQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := ApiRouter{deps: Deps{LimiterStorage: NewLimiterStorage(client)}}
	app := fiber.New()
	app.Get("/", r.limiter("test", 1), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
