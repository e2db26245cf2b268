package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Plan struct {
	ID     string `json:"id"`
	Period string `json:"period"`
}

type GatewaySubscription struct {
	ID       string `json:"id"`
	PlanID   string `json:"plan_id"`
	Status   string `json:"status"`
	ShortURL string `json:"short_url"`
}

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type CreatePlanRequest struct {
	Period   string
	Interval int
	Name     string
	Amount   int64
	Currency string
}

type CreateSubscriptionRequest struct {
	PlanID     string            `json:"plan_id"`
	TotalCount int               `json:"total_count"`
	Quantity   int               `json:"quantity"`
	Notes      map[string]string `json:"notes,omitempty"`
}

// Gateway is the payment provider surface billing depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifySubscriptionSignature(paymentID, subscriptionID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

type RazorpayClient struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string

	HTTPClient *http.Client
}

func NewRazorpayClient(cfg config.GatewayConfig) *RazorpayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayClient{
		KeyID:         strings.TrimSpace(cfg.KeyID),
		KeySecret:     strings.TrimSpace(cfg.KeySecret),
		WebhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		BaseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, errors.New("order amount must be positive")
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay order response missing id")
	}
	return &out, nil
}

func (c *RazorpayClient) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	interval := req.Interval
	if interval <= 0 {
		interval = 1
	}
	type item struct {
		Name     string `json:"name"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	body := struct {
		Period   string `json:"period"`
		Interval int    `json:"interval"`
		Item     item   `json:"item"`
	}{
		Period:   req.Period,
		Interval: interval,
		Item:     item{Name: req.Name, Amount: req.Amount, Currency: req.Currency},
	}

	var out Plan
	if err := c.do(ctx, http.MethodPost, "/plans", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay plan response missing id")
	}
	return &out, nil
}

func (c *RazorpayClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*GatewaySubscription, error) {
	if strings.TrimSpace(req.PlanID) == "" {
		return nil, errors.New("plan id is required")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	var out GatewaySubscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay subscription response missing id")
	}
	return &out, nil
}

func (c *RazorpayClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return errors.New("subscription id is required")
	}
	body := map[string]int{"cancel_at_cycle_end": 0}
	return c.do(ctx, http.MethodPost, "/subscriptions/"+id+"/cancel", body, nil)
}

func (c *RazorpayClient) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifySignature(orderID+"|"+paymentID, signature, c.KeySecret)
}

func (c *RazorpayClient) VerifySubscriptionSignature(paymentID, subscriptionID, signature string) bool {
	return verifySignature(paymentID+"|"+subscriptionID, signature, c.KeySecret)
}

func (c *RazorpayClient) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifySignature(string(body), signature, c.WebhookSecret)
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay %s %s failed: status=%d body=%s", method, path, resp.StatusCode, gatewayErrorDescription(respBody))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// gatewayErrorDescription extracts error.description from an error body,
// falling back to the raw body.
func gatewayErrorDescription(body []byte) string {
	var e struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Description != "" {
		return e.Error.Code + ": " + e.Error.Description
	}
	return string(body)
}
