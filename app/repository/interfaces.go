package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/talentbridge/jobboard/app/models"
)

// AccountRepository defines account and agency-hierarchy operations.
type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id uint) (*models.Account, error)
	GetByEmail(email string) (*models.Account, error)
	UpdateFields(id uint, fields map[string]any) error
	Delete(id uint) error
	ListSlaves(masterID uint, offset, limit int) ([]models.Account, int64, error)
	GetSlave(masterID, slaveID uint) (*models.Account, error)
	SlaveIDs(masterID uint) ([]uint, error)
	CountSlaves(masterID uint) (total int64, active int64, err error)
	SetCurrentSubscription(accountIDs []uint, subscriptionID uint) error
}

// CredentialRepository resolves ATS API keys.
type CredentialRepository interface {
	Create(cred *models.APICredential) error
	GetActiveByAPIKey(apiKey string) (*models.APICredential, error)
	TouchLastUsed(id uint, at time.Time) error
	Revoke(apiKey string, at time.Time) (bool, error)
}

// JobRepository defines job posting operations.
type JobRepository interface {
	Create(job *models.Job) error
	GetByID(id uint) (*models.Job, error)
	GetByExternalRef(ownerID uint, ref string) (*models.Job, error)
	UpdateFields(id uint, fields map[string]any) error
	ListByOwner(ownerID uint, offset, limit int) ([]models.Job, int64, error)
	CountVisibleByOwners(ownerIDs []uint) (int64, error)
	ArchiveVisibleByOwners(ownerIDs []uint, at time.Time) ([]uint, error)
}

// CandidateRepository defines candidate discovery operations.
type CandidateRepository interface {
	GetByID(id uint) (*models.CandidateProfile, error)
	Search(filter CandidateFilter) ([]models.CandidateProfile, int64, error)
}

// ResumeViewRepository records unlocked resumes.
type ResumeViewRepository interface {
	CreateIfNotExists(view *models.ResumeView) (bool, error)
	Delete(id uint) error
}

// ConversationRepository defines employer-candidate thread operations.
type ConversationRepository interface {
	CloseOpenForJobs(jobIDs []uint, at time.Time) ([]models.Conversation, error)
}

// SavedJobRepository defines bookmark operations.
type SavedJobRepository interface {
	DeleteByJobs(jobIDs []uint) (int64, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateBatch(notifications []models.Notification) error
}

// PackageRepository defines plan catalog operations.
type PackageRepository interface {
	GetByID(id uint) (*models.Package, error)
	FindFree(country string) (*models.Package, error)
	IncrementEnrolled(id uint) error
}

// PromotionRepository defines promo code operations.
type PromotionRepository interface {
	GetByCode(code string) (*models.Promotion, error)
	Redeem(id uint) (bool, error)
}

// TaxRepository resolves the tax percentage for a country.
type TaxRepository interface {
	PercentFor(country string) (decimal.Decimal, error)
}

// SubscriptionRepository defines subscription lifecycle persistence.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetByOrderID(orderID string) (*models.Subscription, error)
	GetByRazorSubscriptionID(razorSubscriptionID string) (*models.Subscription, error)
	FindLive(accountID uint) (*models.Subscription, error)
	ListLive(accountID uint) ([]models.Subscription, error)
	UpdateFields(id uint, fields map[string]any) error
	MarkActive(id uint, fields map[string]any) (bool, error)
	ListDueForExpiry(now time.Time, limit int) ([]models.Subscription, error)
}

// EntitlementRepository defines counter operations. Consume is a single
// conditional update so concurrent requests cannot overdraw a counter.
type EntitlementRepository interface {
	List(subscriptionID uint) ([]models.EntitlementCounter, error)
	Consume(subscriptionID uint, feature string, n int) (bool, error)
	Refund(subscriptionID uint, feature string, n int) error
	ReplaceAll(subscriptionID uint, counters []models.EntitlementCounter) error
}

// AddOnRepository defines add-on purchase operations.
type AddOnRepository interface {
	Create(addOn *models.SubscriptionAddOn) error
	GetByOrderID(orderID string) (*models.SubscriptionAddOn, error)
	ApplyPaid(addOn *models.SubscriptionAddOn, paymentID string, at time.Time) (bool, error)
}

// WebhookEventRepository is the webhook idempotency ledger.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, outcome, processingError string) error
}
