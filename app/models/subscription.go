package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/talentbridge/jobboard/internal/pkg/pricing"
)

const (
	SUBSCRIPTION_PENDING = "pending"
	SUBSCRIPTION_ACTIVE  = "active"
	SUBSCRIPTION_ENDED   = "ended"
)

const (
	END_REASON_CANCELLED  = "cancelled"
	END_REASON_PENDING    = "payment_pending"
	END_REASON_HALTED     = "halted"
	END_REASON_EXPIRED    = "expired"
	END_REASON_SUPERSEDED = "superseded"
	END_REASON_RENEWED    = "renewed"
)

// PaymentMethod is what the gateway reported about the last captured payment.
type PaymentMethod struct {
	Method      string `json:"method,omitempty"`
	Bank        string `json:"bank,omitempty"`
	Wallet      string `json:"wallet,omitempty"`
	VPA         string `json:"vpa,omitempty"`
	CardLast4   string `json:"cardLast4,omitempty"`
	CardNetwork string `json:"cardNetwork,omitempty"`
}

type CounterSnapshot struct {
	Feature     string `json:"feature"`
	Remaining   int    `json:"remaining"`
	Allowance   int    `json:"allowance"`
	IsUnlimited bool   `json:"isUnlimited"`
}

// SubscriptionSnapshot is a frozen copy of a billing period, appended to
// History when the period is renewed or superseded.
type SubscriptionSnapshot struct {
	SubscriptionID uint              `json:"subscriptionId"`
	PackageID      uint              `json:"packageId"`
	PlanType       string            `json:"planType"`
	StartDate      *time.Time        `json:"startDate,omitempty"`
	ExpiryDate     *time.Time        `json:"expiryDate,omitempty"`
	PaymentID      string            `json:"paymentId,omitempty"`
	Reason         string            `json:"reason"`
	RecordedAt     time.Time         `json:"recordedAt"`
	Counters       []CounterSnapshot `json:"counters"`
}

// Subscription is one grant of entitlements to an account. Its state is
// derived from the flags: pending (unpaid, inactive), active (paid, active,
// not ended) or ended.
type Subscription struct {
	ID                  uint                                      `gorm:"primaryKey" json:"id"`
	AccountID           uint                                      `gorm:"not null;index" json:"accountId"`
	PackageID           uint                                      `gorm:"not null;index" json:"packageId"`
	PlanType            string                                    `gorm:"type:varchar(16);not null" json:"planType"`
	Quantity            int                                       `gorm:"default:1" json:"quantity"`
	PromotionID         *uint                                     `gorm:"index" json:"promotionId,omitempty"`
	IsActive            bool                                      `gorm:"default:false;index" json:"isActive"`
	IsPaid              bool                                      `gorm:"default:false" json:"isPaid"`
	IsEnded             bool                                      `gorm:"default:false;index" json:"isEnded"`
	IsSignatureVerified bool                                      `gorm:"default:false" json:"isSignatureVerified"`
	IsFree              bool                                      `gorm:"default:false" json:"isFree"`
	IsOneTime           bool                                      `gorm:"default:false" json:"isOneTime"`
	IsExtension         bool                                      `gorm:"default:false" json:"isExtension"`
	IsTrial             bool                                      `gorm:"default:false" json:"isTrial"`
	StartDate           *time.Time                                `gorm:"type:timestamp;default:null" json:"startDate,omitempty"`
	ExpiryDate          *time.Time                                `gorm:"type:timestamp;default:null;index" json:"expiryDate,omitempty"`
	TrialEndsAt         *time.Time                                `gorm:"type:timestamp;default:null" json:"trialEndsAt,omitempty"`
	EndedAt             *time.Time                                `gorm:"type:timestamp;default:null" json:"endedAt,omitempty"`
	EndReason           string                                    `gorm:"type:varchar(32)" json:"endReason,omitempty"`
	OrderID             *string                                   `gorm:"type:varchar(64);uniqueIndex" json:"orderId,omitempty"`
	RazorSubscriptionID *string                                   `gorm:"type:varchar(64);uniqueIndex" json:"razorSubscriptionId,omitempty"`
	GatewayPlanID       string                                    `gorm:"type:varchar(64)" json:"-"`
	LastPaymentID       string                                    `gorm:"type:varchar(64)" json:"lastPaymentId,omitempty"`
	LastPaymentError    string                                    `gorm:"type:text" json:"lastPaymentError,omitempty"`
	PaymentMethod       datatypes.JSONType[PaymentMethod]         `gorm:"type:json" json:"paymentMethod"`
	Price               datatypes.JSONType[pricing.Breakdown]     `gorm:"type:json" json:"price"`
	Amount              decimal.Decimal                           `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency            string                                    `gorm:"type:varchar(3)" json:"currency"`
	History             datatypes.JSONSlice[SubscriptionSnapshot] `gorm:"type:json" json:"history"`
	PriorSubscriptionID *uint                                     `gorm:"index" json:"priorSubscriptionId,omitempty"`
	Counters            []EntitlementCounter                      `gorm:"foreignKey:SubscriptionID" json:"counters,omitempty"`
	AddOns              []SubscriptionAddOn                       `gorm:"foreignKey:SubscriptionID" json:"addOns,omitempty"`
	CreatedAt           time.Time                                 `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time                                 `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (s *Subscription) State() string {
	switch {
	case s.IsEnded:
		return SUBSCRIPTION_ENDED
	case s.IsActive && s.IsPaid:
		return SUBSCRIPTION_ACTIVE
	default:
		return SUBSCRIPTION_PENDING
	}
}

// IsLive reports whether the subscription currently grants entitlements.
func (s *Subscription) IsLive() bool {
	return s.IsActive && !s.IsEnded && (s.IsPaid || s.IsFree)
}

func (s *Subscription) IsRecurring() bool {
	return s.RazorSubscriptionID != nil && *s.RazorSubscriptionID != ""
}

// Snapshot freezes the current period together with its counters.
func (s *Subscription) Snapshot(counters []EntitlementCounter, reason string, at time.Time) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		SubscriptionID: s.ID,
		PackageID:      s.PackageID,
		PlanType:       s.PlanType,
		StartDate:      s.StartDate,
		ExpiryDate:     s.ExpiryDate,
		PaymentID:      s.LastPaymentID,
		Reason:         reason,
		RecordedAt:     at,
		Counters:       make([]CounterSnapshot, 0, len(counters)),
	}
	for _, c := range counters {
		snap.Counters = append(snap.Counters, CounterSnapshot{
			Feature:     c.Feature,
			Remaining:   c.Remaining,
			Allowance:   c.Allowance,
			IsUnlimited: c.IsUnlimited,
		})
	}
	return snap
}

// EntitlementCounter is the remaining quota of one feature in one
// subscription. Unlimited counters are never decremented.
type EntitlementCounter struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	SubscriptionID uint      `gorm:"not null;index:ux_entitlement_counters_sub_feature,unique,priority:1" json:"-"`
	Feature        string    `gorm:"type:varchar(50);not null;index:ux_entitlement_counters_sub_feature,unique,priority:2" json:"feature"`
	Remaining      int       `gorm:"not null;default:0" json:"count"`
	Allowance      int       `gorm:"not null;default:0" json:"allowance"`
	IsUnlimited    bool      `gorm:"default:false" json:"isUnlimited"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"-"`
}

// SubscriptionAddOn is a separately paid top-up of entitlement counters.
type SubscriptionAddOn struct {
	ID             uint                                  `gorm:"primaryKey" json:"id"`
	SubscriptionID uint                                  `gorm:"not null;index" json:"subscriptionId"`
	AccountID      uint                                  `gorm:"not null;index" json:"accountId"`
	OrderID        string                                `gorm:"type:varchar(64);not null;uniqueIndex" json:"orderId"`
	Deltas         datatypes.JSONType[map[string]int]    `gorm:"type:json" json:"deltas"`
	Price          datatypes.JSONType[pricing.Breakdown] `gorm:"type:json" json:"price"`
	Amount         decimal.Decimal                       `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	IsPaid         bool                                  `gorm:"default:false;index" json:"isPaid"`
	PaidAt         *time.Time                            `gorm:"type:timestamp;default:null" json:"paidAt,omitempty"`
	PaymentID      string                                `gorm:"type:varchar(64)" json:"paymentId,omitempty"`
	CreatedAt      time.Time                             `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time                             `gorm:"autoUpdateTime" json:"updatedAt"`
}
