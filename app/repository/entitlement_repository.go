package repository

import (
	"errors"
	"sort"

	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

type entitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

func (r *entitlementRepository) List(subscriptionID uint) ([]models.EntitlementCounter, error) {
	var counters []models.EntitlementCounter
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("feature ASC").Find(&counters).Error
	return counters, err
}

func (r *entitlementRepository) find(subscriptionID uint, feature string) (*models.EntitlementCounter, error) {
	var c models.EntitlementCounter
	err := r.db.Where("subscription_id = ? AND feature = ?", subscriptionID, feature).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Consume takes n units of feature. It returns false when the counter is
// missing or holds fewer than n.
func (r *entitlementRepository) Consume(subscriptionID uint, feature string, n int) (bool, error) {
	c, err := r.find(subscriptionID, feature)
	if err != nil || c == nil {
		return false, err
	}
	if c.IsUnlimited {
		return true, nil
	}
	tx := consume(r.db, c.ID, n)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// Refund gives back units taken by Consume when the follow-up write failed
func (r *entitlementRepository) Refund(subscriptionID uint, feature string, n int) error {
	return refund(r.db, subscriptionID, feature, n).Error
}

func consume(db *gorm.DB, counterID uint, n int) *gorm.DB {
	return db.Model(&models.EntitlementCounter{}).
		Where("id = ? AND is_unlimited = ? AND remaining >= ?", counterID, false, n).
		UpdateColumn("remaining", gorm.Expr("remaining - ?", n))
}

func refund(db *gorm.DB, subscriptionID uint, feature string, n int) *gorm.DB {
	return db.Model(&models.EntitlementCounter{}).
		Where("subscription_id = ? AND feature = ? AND is_unlimited = ?", subscriptionID, feature, false).
		UpdateColumn("remaining", gorm.Expr("remaining + ?", n))
}

// increment tops up counters, creating the ones the subscription lacks.
// Unlimited counters are left alone.
func (r *entitlementRepository) increment(subscriptionID uint, deltas map[string]int) error {
	features := make([]string, 0, len(deltas))
	for f := range deltas {
		features = append(features, f)
	}
	sort.Strings(features)

	for _, feature := range features {
		n := deltas[feature]
		c, err := r.find(subscriptionID, feature)
		if err != nil {
			return err
		}
		if c == nil {
			err = r.db.Create(&models.EntitlementCounter{
				SubscriptionID: subscriptionID,
				Feature:        feature,
				Remaining:      n,
				Allowance:      n,
			}).Error
			if err != nil {
				return err
			}
			continue
		}
		if c.IsUnlimited {
			continue
		}
		err = r.db.Model(&models.EntitlementCounter{}).Where("id = ?", c.ID).UpdateColumns(map[string]any{
			"remaining": gorm.Expr("remaining + ?", n),
			"allowance": gorm.Expr("allowance + ?", n),
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAll swaps the subscription's counters for the given set
func (r *entitlementRepository) ReplaceAll(subscriptionID uint, counters []models.EntitlementCounter) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscription_id = ?", subscriptionID).Delete(&models.EntitlementCounter{}).Error; err != nil {
			return err
		}
		if len(counters) == 0 {
			return nil
		}
		rows := make([]models.EntitlementCounter, len(counters))
		for i, c := range counters {
			c.ID = 0
			c.SubscriptionID = subscriptionID
			rows[i] = c
		}
		return tx.Create(&rows).Error
	})
}
