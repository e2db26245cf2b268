package database

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestConfigTranslatesDuplicateKey(t *testing.T) {
	conf := Config()
	conf.DryRun = true
	conf.DisableAutomaticPing = true

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/jobboard?parseTime=true",
		SkipInitializeWithVersion: true,
	}), conf)
	require.NoError(t, err)

	tx := db.Session(&gorm.Session{})
	tx.AddError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'hr@acme.test' for key 'idx_accounts_email'"})
	assert.ErrorIs(t, tx.Error, gorm.ErrDuplicatedKey)

	tx = db.Session(&gorm.Session{})
	tx.AddError(&gomysql.MySQLError{Number: 1146, Message: "Table 'jobboard.jobs' doesn't exist"})
	assert.NotErrorIs(t, tx.Error, gorm.ErrDuplicatedKey)
}

func TestDefaultConfigDoesNotTranslate(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/jobboard?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	tx := db.Session(&gorm.Session{})
	tx.AddError(&gomysql.MySQLError{Number: 1062})
	assert.NotErrorIs(t, tx.Error, gorm.ErrDuplicatedKey)
}
