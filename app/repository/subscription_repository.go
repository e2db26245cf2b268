package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts the subscription together with its counters
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) withCounters() *gorm.DB {
	return r.db.Preload("Counters", func(db *gorm.DB) *gorm.DB {
		return db.Order("feature ASC")
	})
}

func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.withCounters().Preload("AddOns").First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByOrderID(orderID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.withCounters().Where("order_id = ?", orderID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByRazorSubscriptionID(razorSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.withCounters().Where("razor_subscription_id = ?", razorSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func liveScope(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ? AND is_ended = ? AND (is_paid = ? OR is_free = ?)", true, false, true, true)
}

// FindLive returns the newest subscription granting entitlements to the
// account, or nil when there is none.
func (r *subscriptionRepository) FindLive(accountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.withCounters().Scopes(liveScope).
		Where("account_id = ?", accountID).
		Order("is_free ASC, created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListLive(accountID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.withCounters().Scopes(liveScope).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) UpdateFields(id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

// MarkActive applies fields to a subscription that is not paid yet. It
// returns false when another request activated it first.
func (r *subscriptionRepository) MarkActive(id uint, fields map[string]any) (bool, error) {
	tx := markActive(r.db, id, fields)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func markActive(db *gorm.DB, id uint, fields map[string]any) *gorm.DB {
	return db.Model(&models.Subscription{}).Where("id = ? AND is_paid = ?", id, false).Updates(fields)
}

// ListDueForExpiry returns live subscriptions past their expiry date that the
// gateway does not renew.
func (r *subscriptionRepository) ListDueForExpiry(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.withCounters().Scopes(liveScope).
		Where("expiry_date IS NOT NULL AND expiry_date < ?", now).
		Where("razor_subscription_id IS NULL OR razor_subscription_id = ''").
		Order("expiry_date ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}
