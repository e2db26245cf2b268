package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *RazorpayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRazorpayClient(config.GatewayConfig{
		KeyID:         "rzp_test",
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		BaseURL:       srv.URL + "/",
	})
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, testKeySecret, pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 118000, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		_, _ = w.Write([]byte(`{"id":"order_abc","amount":118000,"currency":"INR","status":"created"}`))
	})

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 118000, Currency: "INR", Receipt: "r-1"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestCreateOrderRejectsZeroAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{Currency: "INR"})
	assert.Error(t, err)
}

func TestCreatePlanNestsItem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plans", r.URL.Path)
		var body struct {
			Period   string `json:"period"`
			Interval int    `json:"interval"`
			Item     struct {
				Name   string `json:"name"`
				Amount int64  `json:"amount"`
			} `json:"item"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "monthly", body.Period)
		assert.Equal(t, 1, body.Interval)
		assert.Equal(t, "Growth", body.Item.Name)
		assert.Equal(t, int64(88500), body.Item.Amount)
		_, _ = w.Write([]byte(`{"id":"plan_xyz","period":"monthly"}`))
	})

	plan, err := c.CreatePlan(context.Background(), CreatePlanRequest{Period: "monthly", Name: "Growth", Amount: 88500, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "plan_xyz", plan.ID)
}

func TestCreateSubscription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		var body CreateSubscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "plan_xyz", body.PlanID)
		assert.Equal(t, 12, body.TotalCount)
		assert.Equal(t, 1, body.Quantity)
		_, _ = w.Write([]byte(`{"id":"sub_abc","plan_id":"plan_xyz","status":"created"}`))
	})

	sub, err := c.CreateSubscription(context.Background(), CreateSubscriptionRequest{PlanID: "plan_xyz", TotalCount: 12})
	require.NoError(t, err)
	assert.Equal(t, "sub_abc", sub.ID)
}

func TestCancelSubscription(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/subscriptions/sub_abc/cancel", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"sub_abc","status":"cancelled"}`))
	})

	require.NoError(t, c.CancelSubscription(context.Background(), "sub_abc"))
	assert.True(t, called)
	assert.Error(t, c.CancelSubscription(context.Background(), " "))
}

func TestGatewayErrorDescription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	})

	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 1, Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "BAD_REQUEST_ERROR: amount exceeds maximum")
}

func TestGatewayRequiresCredentials(t *testing.T) {
	c := NewRazorpayClient(config.GatewayConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
	assert.ErrorContains(t, err, "not configured")
}

func TestSignatureVerification(t *testing.T) {
	c := &RazorpayClient{KeySecret: testKeySecret, WebhookSecret: testWebhookSecret}

	sig := Sign("order_1|pay_1", testKeySecret)
	assert.True(t, c.VerifyPaymentSignature("order_1", "pay_1", sig))
	assert.False(t, c.VerifyPaymentSignature("order_1", "pay_2", sig))
	assert.False(t, c.VerifyPaymentSignature("order_1", "pay_1", "not-hex"))
	assert.False(t, c.VerifyPaymentSignature("order_1", "pay_1", ""))

	subSig := Sign("pay_1|sub_1", testKeySecret)
	assert.True(t, c.VerifySubscriptionSignature("pay_1", "sub_1", subSig))
	assert.False(t, c.VerifySubscriptionSignature("sub_1", "pay_1", subSig))

	body := []byte(`{"event":"order.paid"}`)
	assert.True(t, c.VerifyWebhookSignature(body, Sign(string(body), testWebhookSecret)))
	assert.False(t, c.VerifyWebhookSignature(body, Sign(string(body), testKeySecret)))

	noSecret := &RazorpayClient{}
	assert.False(t, noSecret.VerifyWebhookSignature(body, Sign(string(body), "")))
}
