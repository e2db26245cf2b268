package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// APICredential is the key triple an ATS integration sends on every call.
// Only the secret is stored hashed; the API key and account key are
// public identifiers.
type APICredential struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AccountID     uint       `gorm:"not null;index" json:"accountId"`
	AccountKey    string     `gorm:"type:varchar(64);not null;index" json:"accountKey"`
	APIKey        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"apiKey"`
	SecretKeyHash string     `gorm:"type:char(64);not null" json:"-"`
	Label         string     `gorm:"type:varchar(100)" json:"label,omitempty"`
	LastUsedAt    *time.Time `gorm:"type:timestamp;default:null" json:"lastUsedAt,omitempty"`
	RevokedAt     *time.Time `gorm:"type:timestamp;default:null" json:"revokedAt,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// HashSecretKey returns the SHA-256 hash for the provided secret.
func HashSecretKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func randomToken(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// IssueAPICredential creates a fresh triple for an account and returns the
// plain secret, which is never stored.
func IssueAPICredential(accountID uint, accountKey, label string) (*APICredential, string, error) {
	apiKey, err := randomToken("ak_", 16)
	if err != nil {
		return nil, "", err
	}
	secret, err := randomToken("sk_", 24)
	if err != nil {
		return nil, "", err
	}
	if accountKey == "" {
		if accountKey, err = randomToken("acc_", 8); err != nil {
			return nil, "", err
		}
	}
	return &APICredential{
		AccountID:     accountID,
		AccountKey:    accountKey,
		APIKey:        apiKey,
		SecretKeyHash: HashSecretKey(secret),
		Label:         label,
	}, secret, nil
}

func (c *APICredential) IsActive() bool {
	return c.RevokedAt == nil && c.SecretKeyHash != ""
}
