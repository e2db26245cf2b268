package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(cred *models.APICredential) error {
	return r.db.Create(cred).Error
}

// GetActiveByAPIKey resolves an API key that has not been revoked.
func (r *credentialRepository) GetActiveByAPIKey(apiKey string) (*models.APICredential, error) {
	trimmed := strings.TrimSpace(apiKey)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var cred models.APICredential
	err := r.db.Where("api_key = ? AND revoked_at IS NULL", trimmed).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) TouchLastUsed(id uint, at time.Time) error {
	return r.db.Model(&models.APICredential{}).Where("id = ?", id).UpdateColumn("last_used_at", at).Error
}

// Revoke stamps an active key as revoked. It returns false when the key is
// unknown or already revoked.
func (r *credentialRepository) Revoke(apiKey string, at time.Time) (bool, error) {
	tx := revokeCredential(r.db, strings.TrimSpace(apiKey), at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func revokeCredential(db *gorm.DB, apiKey string, at time.Time) *gorm.DB {
	return db.Model(&models.APICredential{}).
		Where("api_key = ? AND revoked_at IS NULL", apiKey).
		UpdateColumn("revoked_at", at)
}
