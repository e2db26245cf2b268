package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles every repository the handlers and services use.
type Repositories struct {
	Account      AccountRepository
	Credential   CredentialRepository
	Job          JobRepository
	Candidate    CandidateRepository
	ResumeView   ResumeViewRepository
	Conversation ConversationRepository
	SavedJob     SavedJobRepository
	Notification NotificationRepository
	Package      PackageRepository
	Promotion    PromotionRepository
	Tax          TaxRepository
	Subscription SubscriptionRepository
	Entitlement  EntitlementRepository
	AddOn        AddOnRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates GORM-backed repositories sharing one handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:      NewAccountRepository(db),
		Credential:   NewCredentialRepository(db),
		Job:          NewJobRepository(db),
		Candidate:    NewCandidateRepository(db),
		ResumeView:   NewResumeViewRepository(db),
		Conversation: NewConversationRepository(db),
		SavedJob:     NewSavedJobRepository(db),
		Notification: NewNotificationRepository(db),
		Package:      NewPackageRepository(db),
		Promotion:    NewPromotionRepository(db),
		Tax:          NewTaxRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Entitlement:  NewEntitlementRepository(db),
		AddOn:        NewAddOnRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
