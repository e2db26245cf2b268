package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PLAN_MONTHLY = "monthly"
	PLAN_YEARLY  = "yearly"
)

// Allowance is the quota one feature grants per billing period.
type Allowance struct {
	Feature   string `json:"feature"`
	Monthly   int    `json:"monthly"`
	Yearly    int    `json:"yearly"`
	Unlimited bool   `json:"unlimited"`
}

// Package is a purchasable plan. Prices are per unit; the Total*BeforeTax
// fields are the list prices after plan-level discounts.
type Package struct {
	ID                      uint                                           `gorm:"primaryKey" json:"id"`
	Name                    string                                         `gorm:"type:varchar(150);not null" json:"name"`
	Description             string                                         `gorm:"type:text" json:"description,omitempty"`
	Country                 string                                         `gorm:"type:varchar(100);index" json:"country"`
	Currency                string                                         `gorm:"type:varchar(3);default:'INR'" json:"currency"`
	IsFree                  bool                                           `gorm:"default:false;index" json:"isFree"`
	IsActive                bool                                           `gorm:"default:true;index" json:"isActive"`
	MonthlyBasePrice        decimal.Decimal                                `gorm:"type:decimal(12,2);not null;default:0" json:"monthlyBasePrice"`
	YearlyBasePrice         decimal.Decimal                                `gorm:"type:decimal(12,2);not null;default:0" json:"yearlyBasePrice"`
	TotalMonthlyBeforeTax   decimal.Decimal                                `gorm:"type:decimal(12,2);not null;default:0" json:"totalMonthlyBeforeTax"`
	TotalYearlyBeforeTax    decimal.Decimal                                `gorm:"type:decimal(12,2);not null;default:0" json:"totalYearlyBeforeTax"`
	MinQuantityForDiscount  int                                            `gorm:"default:0" json:"minQuantityForDiscount"`
	QuantityDiscountPercent decimal.Decimal                                `gorm:"type:decimal(5,2);not null;default:0" json:"quantityDiscountPercent"`
	ValidityDays            int                                            `gorm:"default:0" json:"validityDays"`
	TrialDays               int                                            `gorm:"default:0" json:"trialDays"`
	Allowances              datatypes.JSONSlice[Allowance]                 `gorm:"type:json" json:"allowances"`
	AddOnPrices             datatypes.JSONType[map[string]decimal.Decimal] `gorm:"type:json" json:"addOnPrices"`
	GatewayPlanMonthlyID    string                                         `gorm:"type:varchar(64)" json:"-"`
	GatewayPlanYearlyID     string                                         `gorm:"type:varchar(64)" json:"-"`
	EnrolledUsers           int64                                          `gorm:"default:0" json:"enrolledUsers"`
	CreatedAt               time.Time                                      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt               time.Time                                      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Prices returns the list price and the plan-discounted price of one unit.
func (p *Package) Prices(planType string) (gross, net decimal.Decimal) {
	if planType == PLAN_YEARLY {
		return p.YearlyBasePrice, p.TotalYearlyBeforeTax
	}
	return p.MonthlyBasePrice, p.TotalMonthlyBeforeTax
}

func (p *Package) GatewayPlanID(planType string) string {
	if planType == PLAN_YEARLY {
		return p.GatewayPlanYearlyID
	}
	return p.GatewayPlanMonthlyID
}

func (p *Package) AllowanceFor(feature string) (Allowance, bool) {
	for _, a := range p.Allowances {
		if a.Feature == feature {
			return a, true
		}
	}
	return Allowance{}, false
}

func (p *Package) UnitAddOnPrices() map[string]decimal.Decimal {
	prices := p.AddOnPrices.Data()
	if prices == nil {
		return map[string]decimal.Decimal{}
	}
	return prices
}

// TaxConfig holds the tax percentage charged in a country.
type TaxConfig struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Country   string          `gorm:"type:varchar(100);uniqueIndex" json:"country"`
	Label     string          `gorm:"type:varchar(50)" json:"label"`
	Percent   decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"percent"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}
