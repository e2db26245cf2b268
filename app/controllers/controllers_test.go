package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/app/repository/memory"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/middleware"
	"github.com/talentbridge/jobboard/internal/pkg/paadmin"
	"github.com/talentbridge/jobboard/internal/pkg/response"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "whsec_test"
)

type harness struct {
	app      *fiber.App
	store    *memory.Store
	repos    *repository.Repositories
	tokens   *auth.Tokens
	employer *models.Account
	master   *models.Account
	growth   *models.Package
	apiKey   string
	secret   string
}

// gatewayStub answers order creation the way the payment gateway does.
func gatewayStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_stub",
			"amount":   body["amount"],
			"currency": body["currency"],
			"status":   "created",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.New()}
	h.repos = h.store.Repositories()
	h.tokens = auth.NewTokens(config.AuthConfig{JWTSecret: "controller-secret", Issuer: "jobboard"})

	h.store.PutTax("IN", decimal.NewFromInt(18))
	h.employer = h.store.PutAccount(models.Account{Name: "Acme", Email: "hr@acme.test", Role: models.ROLE_EMPLOYER, Status: models.STATUS_ACTIVE, Country: "IN"})
	master := models.Account{Name: "Bright", Email: "owner@bright.test", Role: models.ROLE_PA_MASTER, Status: models.STATUS_ACTIVE, Country: "IN", AgencyType: models.AGENCY_PA}
	require.NoError(t, master.SetPassword("correct horse"))
	h.master = h.store.PutAccount(master)
	h.growth = h.store.PutPackage(models.Package{
		Name:                  "Growth",
		Currency:              "INR",
		IsActive:              true,
		MonthlyBasePrice:      decimal.NewFromInt(1200),
		TotalMonthlyBeforeTax: decimal.NewFromInt(1000),
		YearlyBasePrice:       decimal.NewFromInt(12000),
		TotalYearlyBeforeTax:  decimal.NewFromInt(10000),
		ValidityDays:          30,
		Allowances: []models.Allowance{
			{Feature: entitlements.FeatureJobs, Monthly: 2, Yearly: 24},
			{Feature: entitlements.FeatureViews, Monthly: 1, Yearly: 12},
		},
	})

	cred, secret, err := models.IssueAPICredential(h.employer.ID, "acc_acme", "ats")
	require.NoError(t, err)
	require.NoError(t, h.repos.Credential.Create(cred))
	h.apiKey, h.secret = cred.APIKey, secret

	gateway := billing.NewRazorpayClient(config.GatewayConfig{
		KeyID:         "rzp_test",
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		BaseURL:       gatewayStub(t).URL,
	})
	billingSvc := billing.NewService(billing.Deps{Repos: h.repos, Gateway: gateway}, billing.Options{
		Environment: config.EnvDevelopment,
		KeyID:       "rzp_test",
	})
	atsCtl := NewATSController(ats.NewService(h.repos, billingSvc, nil))
	paCtl := NewPAAdminController(paadmin.NewService(h.repos, h.tokens, nil))
	billingCtl := NewBillingController(billingSvc)

	h.app = fiber.New()
	atsGroup := h.app.Group("/ats/v1", middleware.ATSKeyAuth(h.repos.Credential, h.repos.Account))
	atsGroup.Post("/jobs", atsCtl.HandlePostJobs)
	atsGroup.Get("/jobs", atsCtl.HandleListJobs)
	atsGroup.Put("/jobs/:id", atsCtl.HandleUpdateJob)
	atsGroup.Delete("/jobs/:id", atsCtl.HandleCloseJob)
	atsGroup.Get("/candidates", atsCtl.HandleSearchCandidates)
	atsGroup.Get("/candidates/:id/resume", atsCtl.HandleViewResume)
	atsGroup.Get("/subscription", atsCtl.HandleSubscription)

	h.app.Post("/pa/v1/login", paCtl.LoginHandler(models.ROLE_PA_MASTER))
	pa := h.app.Group("/pa/v1", middleware.BearerAuth(h.tokens, h.repos.Account), middleware.RequireRole(models.ROLE_PA_MASTER))
	pa.Get("/users", paCtl.HandleListUsers)
	pa.Post("/users", paCtl.HandleCreateUser)
	pa.Put("/users/:id", paCtl.HandleUpdateUser)
	pa.Patch("/users/:id/status", paCtl.HandleSetUserStatus)
	pa.Delete("/users/:id", paCtl.HandleDeleteUser)
	pa.Get("/dashboard", paCtl.HandleDashboard)

	subs := h.app.Group("/api/v1/subscriptions", middleware.BearerAuth(h.tokens, h.repos.Account))
	subs.Post("/quote", billingCtl.HandleQuote)
	subs.Post("/checkout", billingCtl.HandleCheckout)
	subs.Post("/verify", billingCtl.HandleVerify)
	subs.Post("/addons", billingCtl.HandleAddOnCheckout)
	subs.Post("/addons/verify", billingCtl.HandleAddOnVerify)
	subs.Get("/current", billingCtl.HandleCurrent)
	h.app.Post("/webhooks/payments", billingCtl.HandleWebhook)
	return h
}

func (h *harness) subscribe(t *testing.T, accountID uint) *models.Subscription {
	t.Helper()
	expiry := time.Now().AddDate(0, 0, 20)
	return h.store.PutSubscription(models.Subscription{
		AccountID:  accountID,
		PackageID:  h.growth.ID,
		PlanType:   models.PLAN_MONTHLY,
		Quantity:   1,
		IsPaid:     true,
		IsActive:   true,
		ExpiryDate: &expiry,
		Counters:   entitlements.CountersForPeriod(h.growth, models.PLAN_MONTHLY, 1),
	})
}

func (h *harness) bearer(t *testing.T, account *models.Account) map[string]string {
	t.Helper()
	token, _, err := h.tokens.Issue(account.ID, account.Role)
	require.NoError(t, err)
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func (h *harness) atsHeaders() map[string]string {
	return map[string]string{
		middleware.HeaderSecretKey:  h.secret,
		middleware.HeaderAPIKey:     h.apiKey,
		middleware.HeaderAccountKey: "acc_acme",
	}
}

type envelope struct {
	Data           json.RawMessage `json:"data"`
	Message        string          `json:"message"`
	Status         string          `json:"status"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	TotalCount     *int64          `json:"totalCount"`
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func job(ref, title string) map[string]any {
	return map[string]any{"externalRef": ref, "title": title, "description": "Do work", "latitude": 12.9, "longitude": 77.6}
}

func TestATSJobsFlow(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, h.employer.ID)

	status, env := h.do(t, "POST", "/ats/v1/jobs", map[string]any{"jobs": []any{job("r1", "Go Engineer")}}, h.atsHeaders())
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	assert.Equal(t, response.StatusSuccess, env.Status)
	assert.Equal(t, fiber.StatusCreated, env.HTTPStatusCode)

	var posted ats.PostJobsResult
	require.NoError(t, json.Unmarshal(env.Data, &posted))
	require.Len(t, posted.Jobs, 1)
	jobID := posted.Jobs[0].Job.ID

	status, env = h.do(t, "GET", "/ats/v1/jobs?limit=10", nil, h.atsHeaders())
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, env.TotalCount)
	assert.EqualValues(t, 1, *env.TotalCount)

	status, _ = h.do(t, "PUT", "/ats/v1/jobs/"+itoa(jobID), job("", "Senior Go Engineer"), h.atsHeaders())
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(t, "DELETE", "/ats/v1/jobs/"+itoa(jobID), nil, h.atsHeaders())
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, h.store.Job(jobID).IsClosed)

	status, env = h.do(t, "POST", "/ats/v1/jobs", map[string]any{"jobs": []any{job("r2", "A"), job("r3", "B")}}, h.atsHeaders())
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, response.StatusError, env.Status)
}

func TestATSValidationAndAuth(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, h.employer.ID)

	status, _ := h.do(t, "GET", "/ats/v1/jobs", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	missingCoords := map[string]any{"title": "No coords", "description": "x"}
	status, env := h.do(t, "POST", "/ats/v1/jobs", map[string]any{"jobs": []any{missingCoords}}, h.atsHeaders())
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, env.Message, "Latitude")

	status, _ = h.do(t, "POST", "/ats/v1/jobs", map[string]any{"jobs": []any{}}, h.atsHeaders())
	assert.Equal(t, fiber.StatusBadRequest, status)

	rival := h.store.PutJob(models.Job{OwnerID: h.master.ID, Title: "Theirs", IsVisible: true})
	status, _ = h.do(t, "PUT", "/ats/v1/jobs/"+itoa(rival.ID), job("", "Mine now"), h.atsHeaders())
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = h.do(t, "GET", "/ats/v1/candidates?lat=200&lng=10", nil, h.atsHeaders())
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestATSCandidatesAndResume(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, h.employer.ID)
	c := h.store.PutCandidate(models.CandidateProfile{DisplayName: "Asha", Title: "Go developer", Country: "IN", IsVisible: true, ResumeURL: "https://cdn.test/asha.pdf"})
	other := h.store.PutCandidate(models.CandidateProfile{DisplayName: "Ravi", Title: "Go developer", Country: "IN", IsVisible: true})
	h.store.PutCandidate(models.CandidateProfile{DisplayName: "Anna", Title: "Go developer", Country: "DE", IsVisible: true})

	status, env := h.do(t, "GET", "/ats/v1/candidates?keyword=go&limit=1", nil, h.atsHeaders())
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, *env.TotalCount)

	status, env = h.do(t, "GET", "/ats/v1/candidates/"+itoa(c.ID)+"/resume", nil, h.atsHeaders())
	require.Equal(t, fiber.StatusOK, status)
	var resume ats.Resume
	require.NoError(t, json.Unmarshal(env.Data, &resume))
	assert.Equal(t, "https://cdn.test/asha.pdf", resume.ResumeURL)

	status, _ = h.do(t, "GET", "/ats/v1/candidates/"+itoa(c.ID)+"/resume", nil, h.atsHeaders())
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = h.do(t, "GET", "/ats/v1/candidates/"+itoa(other.ID)+"/resume", nil, h.atsHeaders())
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = h.do(t, "GET", "/ats/v1/subscription", nil, h.atsHeaders())
	assert.Equal(t, fiber.StatusOK, status)
}

func TestPAConsole(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, "POST", "/pa/v1/login", map[string]any{"email": "owner@bright.test", "password": "correct horse"}, nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var session paadmin.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	headers := map[string]string{fiber.HeaderAuthorization: "Bearer " + session.Token}

	status, _ = h.do(t, "POST", "/pa/v1/login", map[string]any{"email": "owner@bright.test", "password": "nope"}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, env = h.do(t, "POST", "/pa/v1/users", map[string]any{"name": "Recruiter", "email": "rec@bright.test", "password": "password123"}, headers)
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	var slave models.Account
	require.NoError(t, json.Unmarshal(env.Data, &slave))
	assert.Equal(t, models.AGENCY_PA, slave.AgencyType)

	status, _ = h.do(t, "POST", "/pa/v1/users", map[string]any{"name": "R", "email": "bad"}, headers)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env = h.do(t, "PATCH", "/pa/v1/users/"+itoa(slave.ID)+"/status", map[string]any{"status": "inactive"}, headers)
	require.Equal(t, fiber.StatusOK, status, env.Message)

	status, env = h.do(t, "GET", "/pa/v1/users", nil, headers)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, *env.TotalCount)

	status, env = h.do(t, "GET", "/pa/v1/dashboard", nil, headers)
	require.Equal(t, fiber.StatusOK, status)
	var d paadmin.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.EqualValues(t, 1, d.TotalUsers)
	assert.EqualValues(t, 0, d.ActiveUsers)

	status, _ = h.do(t, "GET", "/pa/v1/dashboard", nil, h.bearer(t, h.employer))
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(t, "DELETE", "/pa/v1/users/"+itoa(slave.ID), nil, headers)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestSubscriptionCheckoutAndVerify(t *testing.T) {
	h := newHarness(t)
	headers := h.bearer(t, h.employer)

	status, env := h.do(t, "POST", "/api/v1/subscriptions/quote", map[string]any{"packageId": h.growth.ID, "planType": "monthly"}, headers)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var quote billing.Quote
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.True(t, quote.Price.Total.Equal(decimal.NewFromInt(1180)), quote.Price.Total.String())

	status, _ = h.do(t, "POST", "/api/v1/subscriptions/quote", map[string]any{"packageId": h.growth.ID, "planType": "weekly"}, headers)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env = h.do(t, "POST", "/api/v1/subscriptions/checkout", map[string]any{"packageId": h.growth.ID, "planType": "monthly", "isOneTime": true}, headers)
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	var checkout billing.CheckoutResult
	require.NoError(t, json.Unmarshal(env.Data, &checkout))
	assert.Equal(t, "order_stub", checkout.OrderID)

	verify := map[string]any{
		"razorpay_order_id":   checkout.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "deadbeef",
	}
	status, _ = h.do(t, "POST", "/api/v1/subscriptions/verify", verify, headers)
	assert.Equal(t, fiber.StatusBadRequest, status)

	verify["razorpay_signature"] = billing.Sign(checkout.OrderID+"|pay_1", testKeySecret)
	status, env = h.do(t, "POST", "/api/v1/subscriptions/verify", verify, headers)
	require.Equal(t, fiber.StatusOK, status, env.Message)

	status, env = h.do(t, "POST", "/api/v1/subscriptions/verify", verify, headers)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Payment already verified", env.Message)

	status, env = h.do(t, "GET", "/api/v1/subscriptions/current", nil, headers)
	require.Equal(t, fiber.StatusOK, status)
	var cur billing.CurrentSubscription
	require.NoError(t, json.Unmarshal(env.Data, &cur))
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, cur.State)
	assert.Equal(t, 2, cur.Entitlements[entitlements.FeatureJobs].Count)

	status, _ = h.do(t, "GET", "/api/v1/subscriptions/current", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("POST", "/webhooks/payments", bytes.NewReader([]byte(`{"event":"order.paid"}`)))
	req.Header.Set("X-Razorpay-Signature", "bad")
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, h.store.WebhookEvents())

	body := []byte(`{"event":"payment.downtime.started","payload":{}}`)
	req = httptest.NewRequest("POST", "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", billing.Sign(string(body), testWebhookSecret))
	req.Header.Set("X-Razorpay-Event-Id", "evt_1")
	resp, err = h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, billing.OutcomeIgnored, out["outcome"])
	require.Len(t, h.store.WebhookEvents(), 1)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
