package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PROMO_FIXED      = "fixed"
	PROMO_PERCENTAGE = "percentage"
)

var (
	ErrPromoInactive      = errors.New("promo code is not active")
	ErrPromoNotStarted    = errors.New("promo code is not valid yet")
	ErrPromoExpired       = errors.New("promo code has expired")
	ErrPromoExhausted     = errors.New("promo code has reached its redemption limit")
	ErrPromoNotApplicable = errors.New("promo code does not apply to this package")
)

type Promotion struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Code           string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	PromoType      string          `gorm:"type:varchar(16);not null" json:"promoType" validate:"oneof=fixed percentage"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PackageID      *uint           `gorm:"index" json:"packageId,omitempty"`
	ValidFrom      *time.Time      `gorm:"type:timestamp;default:null" json:"validFrom,omitempty"`
	ValidTill      *time.Time      `gorm:"type:timestamp;default:null" json:"validTill,omitempty"`
	MaxRedemptions int             `gorm:"default:0" json:"maxRedemptions"`
	Redemptions    int             `gorm:"default:0" json:"redemptions"`
	IsActive       bool            `gorm:"default:true" json:"isActive"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// BeforeSave stores codes in the form GetByCode looks them up in.
func (p *Promotion) BeforeSave(tx *gorm.DB) error {
	p.Code = NormalizePromoCode(p.Code)
	return nil
}

// CheckUsable reports why the promotion cannot be applied to packageID at now.
func (p *Promotion) CheckUsable(now time.Time, packageID uint) error {
	switch {
	case !p.IsActive:
		return ErrPromoInactive
	case p.ValidFrom != nil && now.Before(*p.ValidFrom):
		return ErrPromoNotStarted
	case p.ValidTill != nil && now.After(*p.ValidTill):
		return ErrPromoExpired
	case p.MaxRedemptions > 0 && p.Redemptions >= p.MaxRedemptions:
		return ErrPromoExhausted
	case p.PackageID != nil && *p.PackageID != packageID:
		return ErrPromoNotApplicable
	}
	return nil
}
