package billing

import (
	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/pricing"
)

const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeReplayed         = "payment_replayed"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalidPayload   = "invalid_payload"
	OutcomeFailed           = "failed"
)

const (
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionPending   = "subscription.pending"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventOrderPaid             = "order.paid"
	EventPaymentFailed         = "payment.failed"
	EventDowntimeStarted       = "payment.downtime.started"
	EventDowntimeResolved      = "payment.downtime.resolved"
)

type QuoteInput struct {
	AccountID uint
	PackageID uint
	PlanType  string
	Quantity  int
	PromoCode string
}

type Quote struct {
	PackageID       uint              `json:"packageId"`
	PlanType        string            `json:"planType"`
	Currency        string            `json:"currency"`
	PromoCode       string            `json:"promoCode,omitempty"`
	Price           pricing.Breakdown `json:"price"`
	GatewayDegraded bool              `json:"gatewayDegraded"`
}

type CheckoutInput struct {
	AccountID   uint
	PackageID   uint
	PlanType    string
	Quantity    int
	PromoCode   string
	IsOneTime   bool
	IsExtension bool
}

type CheckoutResult struct {
	SubscriptionID      uint              `json:"subscriptionId"`
	OrderID             string            `json:"orderId,omitempty"`
	RazorSubscriptionID string            `json:"razorSubscriptionId,omitempty"`
	KeyID               string            `json:"keyId"`
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	Price               pricing.Breakdown `json:"price"`
}

type VerifyInput struct {
	AccountID           uint
	PaymentID           string
	OrderID             string
	RazorSubscriptionID string
	Signature           string
}

type AddOnInput struct {
	AccountID uint
	Deltas    map[string]int
}

type AddOnCheckoutResult struct {
	AddOnID  uint              `json:"addOnId"`
	OrderID  string            `json:"orderId"`
	KeyID    string            `json:"keyId"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Price    pricing.Breakdown `json:"price"`
}

type VerifyAddOnInput struct {
	AccountID uint
	OrderID   string
	PaymentID string
	Signature string
}

type WebhookInput struct {
	Body      []byte
	Signature string
	EventID   string
}

type WebhookResult struct {
	EventID string `json:"eventId"`
	Event   string `json:"event"`
	Outcome string `json:"outcome"`
}

// CurrentSubscription is what an account sees about its entitlements.
type CurrentSubscription struct {
	Subscription *models.Subscription                `json:"subscription"`
	Package      *models.Package                     `json:"package,omitempty"`
	State        string                              `json:"state"`
	Entitlements map[string]entitlements.Entitlement `json:"entitlements"`
	AlreadyPaid  bool                                `json:"alreadyPaid,omitempty"`
}
