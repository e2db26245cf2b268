package models

import "time"

const PAYMENT_PROVIDER_RAZORPAY = "razorpay"

// PaymentWebhookEvent is the idempotency ledger for gateway callbacks. A
// (provider, event id) pair is processed at most once.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"providerEventId"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"eventType"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payloadJson"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signatureValid"`
	Outcome         string     `gorm:"type:varchar(32)" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}
