package database

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Config enables error translation so duplicate-key failures surface as
// gorm.ErrDuplicatedKey.
func Config() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

func SetupDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), Config())
		if err == nil {
			if err = Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.APICredential{},
		&models.Job{},
		&models.CandidateProfile{},
		&models.ResumeView{},
		&models.Conversation{},
		&models.SavedJob{},
		&models.Notification{},
		&models.Package{},
		&models.Promotion{},
		&models.TaxConfig{},
		&models.Subscription{},
		&models.EntitlementCounter{},
		&models.SubscriptionAddOn{},
		&models.PaymentWebhookEvent{},
	)
}
