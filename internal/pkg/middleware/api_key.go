package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

const (
	HeaderSecretKey  = "X-Secret-Key"
	HeaderAPIKey     = "X-API-Key"
	HeaderAccountKey = "X-Account-Key"
)

// ATSKeyAuth authenticates ATS integrations by the secret, API and account
// key headers. All three must match one active credential.
func ATSKeyAuth(creds repository.CredentialRepository, accounts repository.AccountRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(c.Get(HeaderSecretKey))
		apiKey := strings.TrimSpace(c.Get(HeaderAPIKey))
		accountKey := strings.TrimSpace(c.Get(HeaderAccountKey))
		if secret == "" || apiKey == "" || accountKey == "" {
			return response.Fail(c, fiber.StatusUnauthorized, "Missing API credentials")
		}

		cred, err := creds.GetActiveByAPIKey(apiKey)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.Fail(c, fiber.StatusUnauthorized, "Invalid API credentials")
			}
			log.Errorf("[Auth] ats key lookup failed: %v", err)
			return response.Fail(c, fiber.StatusInternalServerError, "API key verification failed")
		}
		if !cred.IsActive() || !keysMatch(cred, secret, accountKey) {
			return response.Fail(c, fiber.StatusUnauthorized, "Invalid API credentials")
		}

		account, err := accounts.GetByID(cred.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.Fail(c, fiber.StatusUnauthorized, "Invalid API credentials")
			}
			log.Errorf("[Auth] ats account %d lookup failed: %v", cred.AccountID, err)
			return response.Fail(c, fiber.StatusInternalServerError, "API key verification failed")
		}
		if !account.IsActive() {
			return response.Fail(c, fiber.StatusForbidden, "Account inactive")
		}

		if err := creds.TouchLastUsed(cred.ID, time.Now()); err != nil {
			log.Warnf("[Auth] failed to update last use of credential %d: %v", cred.ID, err)
		}

		setUserContext(c, account, usercontext.ViaAPIKey, cred.ID)
		return c.Next()
	}
}

func keysMatch(cred *models.APICredential, secret, accountKey string) bool {
	secretOK := subtle.ConstantTimeCompare([]byte(models.HashSecretKey(secret)), []byte(cred.SecretKeyHash)) == 1
	accountOK := subtle.ConstantTimeCompare([]byte(accountKey), []byte(cred.AccountKey)) == 1
	return secretOK && accountOK
}
