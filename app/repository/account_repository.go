package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account in the database
func (r *accountRepository) Create(account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	return r.db.Create(account).Error
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail retrieves an account by its email address
func (r *accountRepository) GetByEmail(email string) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) UpdateFields(id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	tx := r.db.Model(&models.Account{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

// Delete soft deletes an account by its ID
func (r *accountRepository) Delete(id uint) error {
	tx := r.db.Delete(&models.Account{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListSlaves retrieves a paginated list of the accounts managed by masterID
func (r *accountRepository) ListSlaves(masterID uint, offset, limit int) ([]models.Account, int64, error) {
	var total int64
	query := r.db.Model(&models.Account{}).Where("master_id = ?", masterID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []models.Account
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, total, err
}

func (r *accountRepository) GetSlave(masterID, slaveID uint) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("id = ? AND master_id = ?", slaveID, masterID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) SlaveIDs(masterID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Account{}).Where("master_id = ?", masterID).Pluck("id", &ids).Error
	return ids, err
}

// CountSlaves returns the number of slaves of masterID and how many are active
func (r *accountRepository) CountSlaves(masterID uint) (int64, int64, error) {
	var row struct {
		Total  int64
		Active int64
	}
	err := r.db.Model(&models.Account{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active", models.STATUS_ACTIVE).
		Where("master_id = ?", masterID).
		Scan(&row).Error
	return row.Total, row.Active, err
}

func (r *accountRepository) SetCurrentSubscription(accountIDs []uint, subscriptionID uint) error {
	if len(accountIDs) == 0 {
		return nil
	}
	return r.db.Model(&models.Account{}).
		Where("id IN ?", accountIDs).
		Update("current_subscription_id", subscriptionID).Error
}
