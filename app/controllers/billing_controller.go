package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

const webhookTimeout = 15 * time.Second

// BillingController serves subscription checkout and the gateway webhook
type BillingController struct {
	svc *billing.Service
}

func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{svc: svc}
}

type quoteRequest struct {
	PackageID uint   `json:"packageId" validate:"required"`
	PlanType  string `json:"planType" validate:"required,oneof=monthly yearly"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000"`
	PromoCode string `json:"promoCode" validate:"max=64"`
}

type checkoutRequest struct {
	quoteRequest
	IsOneTime   bool `json:"isOneTime"`
	IsExtension bool `json:"isExtension"`
}

type verifyRequest struct {
	PaymentID           string `json:"razorpay_payment_id" validate:"required"`
	OrderID             string `json:"razorpay_order_id" validate:"required_without=RazorSubscriptionID"`
	RazorSubscriptionID string `json:"razorpay_subscription_id" validate:"required_without=OrderID"`
	Signature           string `json:"razorpay_signature" validate:"required"`
}

type addOnRequest struct {
	Deltas map[string]int `json:"deltas" validate:"required,min=1,dive,keys,required,endkeys,gt=0,lte=10000"`
}

type verifyAddOnRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

func (bc *BillingController) HandleQuote(c *fiber.Ctx) error {
	var req quoteRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	quote, err := bc.svc.Quote(c.UserContext(), billing.QuoteInput{
		AccountID: usercontext.GetAccountID(c),
		PackageID: req.PackageID,
		PlanType:  req.PlanType,
		Quantity:  req.Quantity,
		PromoCode: req.PromoCode,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, quote, "Quote")
}

func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	res, err := bc.svc.Checkout(c.UserContext(), billing.CheckoutInput{
		AccountID:   usercontext.GetAccountID(c),
		PackageID:   req.PackageID,
		PlanType:    req.PlanType,
		Quantity:    req.Quantity,
		PromoCode:   req.PromoCode,
		IsOneTime:   req.IsOneTime,
		IsExtension: req.IsExtension,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, res, "Checkout created")
}

func (bc *BillingController) HandleVerify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	cur, err := bc.svc.VerifyPayment(c.UserContext(), billing.VerifyInput{
		AccountID:           usercontext.GetAccountID(c),
		PaymentID:           req.PaymentID,
		OrderID:             req.OrderID,
		RazorSubscriptionID: req.RazorSubscriptionID,
		Signature:           req.Signature,
	})
	if err != nil {
		return response.Error(c, err)
	}
	message := "Payment verified"
	if cur.AlreadyPaid {
		message = "Payment already verified"
	}
	return response.OK(c, cur, message)
}

func (bc *BillingController) HandleAddOnCheckout(c *fiber.Ctx) error {
	var req addOnRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	res, err := bc.svc.CheckoutAddOn(c.UserContext(), billing.AddOnInput{
		AccountID: usercontext.GetAccountID(c),
		Deltas:    req.Deltas,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, res, "Add-on checkout created")
}

func (bc *BillingController) HandleAddOnVerify(c *fiber.Ctx) error {
	var req verifyAddOnRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	cur, err := bc.svc.VerifyAddOn(c.UserContext(), billing.VerifyAddOnInput{
		AccountID: usercontext.GetAccountID(c),
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, cur, "Add-on verified")
}

func (bc *BillingController) HandleCurrent(c *fiber.Ctx) error {
	cur, err := bc.svc.CurrentSubscription(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, cur, "Subscription")
}

// HandleWebhook records and applies a gateway callback. The gateway only
// retries on non-2xx, so every outcome is acknowledged with 200.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	res := bc.svc.HandleWebhook(ctx, billing.WebhookInput{
		Body:      rawBody,
		Signature: strings.TrimSpace(c.Get("X-Razorpay-Signature")),
		EventID:   firstHeaderValue(c, "X-Razorpay-Event-Id", "X-Event-Id"),
	})
	if res.Outcome == billing.OutcomeFailed || res.Outcome == billing.OutcomeInvalidSignature {
		log.Warnf("[Webhook] %s %s from %s: %s", res.Event, res.EventID, c.IP(), res.Outcome)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": res.Outcome})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
