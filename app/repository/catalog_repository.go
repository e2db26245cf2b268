package repository

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

type packageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) GetByID(id uint) (*models.Package, error) {
	var pkg models.Package
	err := r.db.Where("id = ? AND is_active = ?", id, true).First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindFree returns the free package for country, falling back to the one
// without a country.
func (r *packageRepository) FindFree(country string) (*models.Package, error) {
	var pkg models.Package
	err := r.db.Where("is_free = ? AND is_active = ? AND country IN ?", true, true, []string{strings.TrimSpace(country), ""}).
		Order("country DESC").
		First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *packageRepository) IncrementEnrolled(id uint) error {
	return r.db.Model(&models.Package{}).Where("id = ?", id).
		UpdateColumn("enrolled_users", gorm.Expr("enrolled_users + 1")).Error
}

type promotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) GetByCode(code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := r.db.Where("code = ?", models.NormalizePromoCode(code)).First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// Redeem counts one use of the promotion unless its limit is reached.
func (r *promotionRepository) Redeem(id uint) (bool, error) {
	tx := redeem(r.db, id)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func redeem(db *gorm.DB, id uint) *gorm.DB {
	return db.Model(&models.Promotion{}).
		Where("id = ? AND (max_redemptions = 0 OR redemptions < max_redemptions)", id).
		UpdateColumn("redemptions", gorm.Expr("redemptions + 1"))
}

type taxRepository struct {
	db *gorm.DB
}

func NewTaxRepository(db *gorm.DB) TaxRepository {
	return &taxRepository{db: db}
}

// PercentFor returns zero when no tax is configured for country.
func (r *taxRepository) PercentFor(country string) (decimal.Decimal, error) {
	var cfg models.TaxConfig
	err := r.db.Where("country = ?", strings.TrimSpace(country)).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.Percent, nil
}
