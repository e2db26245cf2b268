package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository/memory"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "whsec_test"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeGateway records gateway calls and verifies signatures with the real
// client so tests sign payloads the same way the gateway does.
type fakeGateway struct {
	*RazorpayClient

	mu            sync.Mutex
	orders        []CreateOrderRequest
	plans         []CreatePlanRequest
	subscriptions []CreateSubscriptionRequest
	cancelled     []string
	fail          error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{RazorpayClient: &RazorpayClient{
		KeyID:         "rzp_test",
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
	}}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req CreateOrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	g.orders = append(g.orders, req)
	return &Order{ID: fmt.Sprintf("order_%d", len(g.orders)), Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (g *fakeGateway) CreatePlan(_ context.Context, req CreatePlanRequest) (*Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.plans = append(g.plans, req)
	return &Plan{ID: fmt.Sprintf("plan_%d", len(g.plans)), Period: req.Period}, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, req CreateSubscriptionRequest) (*GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	g.subscriptions = append(g.subscriptions, req)
	return &GatewaySubscription{ID: fmt.Sprintf("sub_%d", len(g.subscriptions)), PlanID: req.PlanID, Status: "created"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	emails []notify.Email
	pushes []notify.Push
	inApp  []models.Notification
}

func (n *recordingNotifier) SendEmail(_ context.Context, email notify.Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
	return nil
}

func (n *recordingNotifier) SendPush(_ context.Context, p notify.Push) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, p)
	return nil
}

func (n *recordingNotifier) InApp(_ context.Context, notifications []models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inApp = append(n.inApp, notifications...)
	return nil
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.emails))
	for _, e := range n.emails {
		out = append(out, e.Template)
	}
	return out
}

type fakeCRM struct {
	mu      sync.Mutex
	reasons []string
}

func (c *fakeCRM) Enqueue(_ context.Context, _ uint, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
	return nil
}

type fakeDowntime struct {
	down bool
}

func (d *fakeDowntime) SetGatewayDowntime(_ context.Context, down bool) error {
	d.down = down
	return nil
}

func (d *fakeDowntime) GatewayDowntime(context.Context) (bool, error) {
	return d.down, nil
}

type fakeArchive struct {
	stored []string
}

func (a *fakeArchive) StoreWebhook(_ context.Context, eventID string, _ time.Time, _ []byte) error {
	a.stored = append(a.stored, eventID)
	return nil
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	gateway  *fakeGateway
	notifier *recordingNotifier
	crm      *fakeCRM
	downtime *fakeDowntime
	archive  *fakeArchive

	account *models.Account
	growth  *models.Package
	free    *models.Package
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
		crm:      &fakeCRM{},
		downtime: &fakeDowntime{},
		archive:  &fakeArchive{},
	}
	f.store.PutTax("IN", decimal.NewFromInt(18))
	f.account = f.store.PutAccount(models.Account{
		Name:    "Acme Hiring",
		Email:   "hr@acme.test",
		Role:    models.ROLE_EMPLOYER,
		Status:  models.STATUS_ACTIVE,
		Country: "IN",
		Company: "Acme",
	})
	f.growth = f.store.PutPackage(models.Package{
		Name:                  "Growth",
		Currency:              "INR",
		IsActive:              true,
		MonthlyBasePrice:      decimal.NewFromInt(1200),
		TotalMonthlyBeforeTax: decimal.NewFromInt(1000),
		YearlyBasePrice:       decimal.NewFromInt(12000),
		TotalYearlyBeforeTax:  decimal.NewFromInt(10000),
		ValidityDays:          30,
		GatewayPlanMonthlyID:  "plan_growth_monthly",
		Allowances: []models.Allowance{
			{Feature: entitlements.FeatureJobs, Monthly: 5, Yearly: 60},
			{Feature: entitlements.FeatureViews, Monthly: 100, Yearly: 1200},
		},
		AddOnPrices: datatypes.NewJSONType(map[string]decimal.Decimal{
			entitlements.FeatureJobs: decimal.NewFromInt(100),
		}),
	})
	f.free = f.store.PutPackage(models.Package{
		Name:       "Free",
		IsFree:     true,
		IsActive:   true,
		Allowances: []models.Allowance{{Feature: entitlements.FeatureJobs, Monthly: 1, Yearly: 12}},
	})

	f.svc = NewService(Deps{
		Repos:    f.store.Repositories(),
		Gateway:  f.gateway,
		Notifier: f.notifier,
		CRM:      f.crm,
		Archive:  f.archive,
		Downtime: f.downtime,
	}, Options{
		Environment:  config.EnvProduction,
		KeyID:        "rzp_test",
		SalesAddress: "sales@jobboard.test",
		Now:          func() time.Time { return testNow },
	})
	return f
}

// activeSubscription seeds a paid, active subscription of the growth
// package for the fixture account.
func (f *fixture) activeSubscription(t *testing.T, mutate func(*models.Subscription)) *models.Subscription {
	t.Helper()
	start := testNow.AddDate(0, 0, -10)
	expiry := testNow.AddDate(0, 0, 20)
	razorID := "sub_seeded"
	sub := models.Subscription{
		AccountID:           f.account.ID,
		PackageID:           f.growth.ID,
		PlanType:            models.PLAN_MONTHLY,
		Quantity:            1,
		IsPaid:              true,
		IsActive:            true,
		StartDate:           &start,
		ExpiryDate:          &expiry,
		RazorSubscriptionID: &razorID,
		LastPaymentID:       "pay_seeded",
		Currency:            "INR",
		Counters:            entitlements.CountersForPeriod(f.growth, models.PLAN_MONTHLY, 1),
	}
	if mutate != nil {
		mutate(&sub)
	}
	stored := f.store.PutSubscription(sub)
	require.NoError(t, f.store.Repositories().Account.SetCurrentSubscription([]uint{f.account.ID}, stored.ID))
	return stored
}

// webhook builds a signed gateway callback.
func (f *fixture) webhook(t *testing.T, eventID, event string, payload map[string]any) WebhookInput {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"entity":     "event",
		"event":      event,
		"created_at": testNow.Unix(),
		"payload":    payload,
	})
	require.NoError(t, err)
	return WebhookInput{Body: body, Signature: Sign(string(body), testWebhookSecret), EventID: eventID}
}

func subscriptionEntityJSON(id string, currentEnd time.Time) map[string]any {
	return map[string]any{"entity": map[string]any{"id": id, "status": "active", "current_end": currentEnd.Unix()}}
}

func paymentEntityJSON(id, orderID, status string) map[string]any {
	return map[string]any{"entity": map[string]any{
		"id":       id,
		"order_id": orderID,
		"status":   status,
		"method":   "card",
		"card":     map[string]any{"last4": "4242", "network": "Visa"},
	}}
}

func counter(t *testing.T, sub models.Subscription, feature string) models.EntitlementCounter {
	t.Helper()
	c, ok := entitlements.Find(sub.Counters, feature)
	require.True(t, ok, "missing counter %s", feature)
	return c
}
