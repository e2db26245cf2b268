package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_EMPLOYER  = "employer"
	ROLE_CANDIDATE = "candidate"
	ROLE_PA_MASTER = "pa_master"
	ROLE_PA_SLAVE  = "pa_slave"
	ROLE_ADMIN     = "admin"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"

	AGENCY_PA = "pa"
	AGENCY_CA = "ca"
)

// Account is any login: employers, candidates, placement-agency masters and
// the slave accounts they manage.
type Account struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Name                  string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email                 string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password              string         `gorm:"type:text" json:"-"`
	Role                  string         `gorm:"type:varchar(20);default:'employer';index" json:"role" validate:"oneof=employer candidate pa_master pa_slave admin"`
	Status                string         `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	Phone                 string         `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Company               string         `gorm:"type:varchar(200)" json:"company,omitempty"`
	Country               string         `gorm:"type:varchar(100);index" json:"country"`
	City                  string         `gorm:"type:varchar(100)" json:"city,omitempty"`
	Latitude              float64        `json:"latitude"`
	Longitude             float64        `json:"longitude"`
	MasterID              *uint          `gorm:"index" json:"masterId,omitempty"`
	AgencyType            string         `gorm:"type:varchar(4)" json:"agencyType,omitempty"`
	CurrentSubscriptionID *uint          `gorm:"index" json:"currentSubscriptionId,omitempty"`
	CRMContactID          string         `gorm:"type:varchar(64)" json:"-"`
	LastLoginAt           *time.Time     `gorm:"type:timestamp;default:null" json:"lastLoginAt,omitempty"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

func (a *Account) CheckPassword(password string) bool {
	return CheckPasswordHash(password, a.Password)
}

func (a *Account) SetPassword(password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	a.Password = hashed
	return nil
}

func (a *Account) IsActive() bool {
	return a.Status == STATUS_ACTIVE
}

func (a *Account) IsPAMaster() bool {
	return a.Role == ROLE_PA_MASTER
}

// BillingOwnerID is the account whose subscription pays for this one.
// Slaves are billed through their master.
func (a *Account) BillingOwnerID() uint {
	if a.Role == ROLE_PA_SLAVE && a.MasterID != nil {
		return *a.MasterID
	}
	return a.ID
}
