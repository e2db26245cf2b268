package ats

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
)

// IssuedCredential holds a freshly generated key triple. SecretKey is only
// available here; the store keeps its hash.
type IssuedCredential struct {
	AccountID  uint   `json:"accountId"`
	AccountKey string `json:"accountKey"`
	APIKey     string `json:"apiKey"`
	SecretKey  string `json:"secretKey"`
	Label      string `json:"label,omitempty"`
}

// IssueCredential creates an ATS key triple for an active hiring account.
func (s *Service) IssueCredential(accountID uint, label string) (*IssuedCredential, error) {
	account, err := s.account(accountID, "issue credential: load account")
	if err != nil {
		return nil, err
	}
	if account.Role == models.ROLE_CANDIDATE {
		return nil, apperr.Forbidden("candidates cannot hold ATS credentials")
	}

	cred, secret, err := models.IssueAPICredential(account.ID, "", label)
	if err != nil {
		return nil, apperr.Internal(err, "issue credential: generate keys")
	}
	if err := s.repos.Credential.Create(cred); err != nil {
		return nil, apperr.Internal(err, "issue credential: store")
	}
	log.Infof("[ATS] Issued API key %s for account %d", cred.APIKey, account.ID)

	return &IssuedCredential{
		AccountID:  account.ID,
		AccountKey: cred.AccountKey,
		APIKey:     cred.APIKey,
		SecretKey:  secret,
		Label:      cred.Label,
	}, nil
}

// RevokeCredential disables an API key for good.
func (s *Service) RevokeCredential(apiKey string) error {
	ok, err := s.repos.Credential.Revoke(apiKey, s.now())
	if err != nil {
		return apperr.Internal(err, "revoke credential")
	}
	if !ok {
		return apperr.NotFound("api key not found or already revoked")
	}
	log.Infof("[ATS] Revoked API key %s", apiKey)
	return nil
}
