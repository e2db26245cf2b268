package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentbridge/jobboard/app/models"
)

type addOnRepository struct {
	db *gorm.DB
}

func NewAddOnRepository(db *gorm.DB) AddOnRepository {
	return &addOnRepository{db: db}
}

func (r *addOnRepository) Create(addOn *models.SubscriptionAddOn) error {
	return r.db.Create(addOn).Error
}

func (r *addOnRepository) GetByOrderID(orderID string) (*models.SubscriptionAddOn, error) {
	var addOn models.SubscriptionAddOn
	err := r.db.Where("order_id = ?", orderID).First(&addOn).Error
	if err != nil {
		return nil, err
	}
	return &addOn, nil
}

// ApplyPaid flips an unpaid add-on to paid and tops up its subscription's
// counters in one transaction. It returns false when another request already
// applied it.
func (r *addOnRepository) ApplyPaid(addOn *models.SubscriptionAddOn, paymentID string, at time.Time) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := markAddOnPaid(tx, addOn.ID, paymentID, at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		counters := &entitlementRepository{db: tx}
		if err := counters.increment(addOn.SubscriptionID, addOn.Deltas.Data()); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func markAddOnPaid(db *gorm.DB, id uint, paymentID string, at time.Time) *gorm.DB {
	return db.Model(&models.SubscriptionAddOn{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]any{
			"is_paid":    true,
			"paid_at":    at,
			"payment_id": paymentID,
		})
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists inserts the event unless its (provider, event id) pair
// is already recorded, and returns the stored row either way.
func (r *webhookEventRepository) CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(id uint, outcome, processingError string) error {
	return markProcessed(r.db, id, outcome, processingError, time.Now()).Error
}

func markProcessed(db *gorm.DB, id uint, outcome, processingError string, at time.Time) *gorm.DB {
	updates := map[string]interface{}{
		"processed_at":     &at,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates)
}
