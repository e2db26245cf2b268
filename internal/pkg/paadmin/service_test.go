package paadmin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository/memory"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/config"
)

type fakeCRM struct {
	reasons []string
}

func (c *fakeCRM) Enqueue(_ context.Context, _ uint, reason string) error {
	c.reasons = append(c.reasons, reason)
	return nil
}

type fixture struct {
	store  *memory.Store
	tokens *auth.Tokens
	crm    *fakeCRM
	svc    *Service
	master *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		tokens: auth.NewTokens(config.AuthConfig{JWTSecret: "test-secret", Issuer: "jobboard"}),
		crm:    &fakeCRM{},
	}
	subID := uint(77)
	master := models.Account{
		Name:                  "Bright Placements",
		Email:                 "owner@bright.test",
		Role:                  models.ROLE_PA_MASTER,
		Status:                models.STATUS_ACTIVE,
		Country:               "IN",
		Company:               "Bright",
		AgencyType:            models.AGENCY_CA,
		CurrentSubscriptionID: &subID,
	}
	require.NoError(t, master.SetPassword("correct horse"))
	f.master = f.store.PutAccount(master)
	f.svc = NewService(f.store.Repositories(), f.tokens, f.crm)
	return f
}

func (f *fixture) createSlave(t *testing.T, email string) *models.Account {
	t.Helper()
	slave, err := f.svc.CreateSlave(context.Background(), f.master.ID, SlaveInput{Name: "Recruiter", Email: email, Password: "password123"})
	require.NoError(t, err)
	return slave
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Login(ctx, "Owner@Bright.test", "correct horse", models.ROLE_PA_MASTER)
	require.NoError(t, err)
	claims, err := f.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, f.master.ID, claims.AccountID)
	assert.Equal(t, models.ROLE_PA_MASTER, claims.Role)
	assert.NotNil(t, f.store.Account(f.master.ID).LastLoginAt)

	_, err = f.svc.Login(ctx, "owner@bright.test", "wrong", models.ROLE_PA_MASTER)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.Login(ctx, "nobody@bright.test", "correct horse")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.Login(ctx, "owner@bright.test", "correct horse", models.ROLE_EMPLOYER)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestLoginInactive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Repositories().Account.UpdateFields(f.master.ID, map[string]any{"status": models.STATUS_INACTIVE}))

	_, err := f.svc.Login(context.Background(), "owner@bright.test", "correct horse")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCreateSlaveInheritsMaster(t *testing.T) {
	f := newFixture(t)

	slave := f.createSlave(t, "rec1@bright.test")
	assert.Equal(t, models.ROLE_PA_SLAVE, slave.Role)
	assert.Equal(t, "IN", slave.Country)
	assert.Equal(t, models.AGENCY_CA, slave.AgencyType)
	require.NotNil(t, slave.MasterID)
	assert.Equal(t, f.master.ID, *slave.MasterID)
	require.NotNil(t, slave.CurrentSubscriptionID)
	assert.EqualValues(t, 77, *slave.CurrentSubscriptionID)
	assert.True(t, slave.CheckPassword("password123"))
	assert.Equal(t, f.master.ID, slave.BillingOwnerID())
	assert.Equal(t, []string{"agency_user_created"}, f.crm.reasons)

	_, err := f.svc.CreateSlave(context.Background(), f.master.ID, SlaveInput{Name: "Dup", Email: "REC1@bright.test", Password: "password123"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.svc.CreateSlave(context.Background(), slave.ID, SlaveInput{Name: "Nested", Email: "n@bright.test", Password: "password123"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSlaveOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slave := f.createSlave(t, "rec1@bright.test")
	rival := f.store.PutAccount(models.Account{Name: "Rival", Email: "rival@x.test", Role: models.ROLE_PA_MASTER, Status: models.STATUS_ACTIVE})

	name := "Hijack"
	_, err := f.svc.UpdateSlave(ctx, rival.ID, slave.ID, SlaveUpdate{Name: &name})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = f.svc.SetSlaveStatus(ctx, rival.ID, slave.ID, models.STATUS_DISABLED)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	err = f.svc.DeleteSlave(ctx, rival.ID, slave.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.UpdateSlave(ctx, f.master.ID, 999, SlaveUpdate{Name: &name})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateSlave(t *testing.T) {
	f := newFixture(t)
	slave := f.createSlave(t, "rec1@bright.test")

	name, city, password := "Senior Recruiter", "Pune", "new-password"
	updated, err := f.svc.UpdateSlave(context.Background(), f.master.ID, slave.ID, SlaveUpdate{Name: &name, City: &city, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "Senior Recruiter", updated.Name)
	assert.Equal(t, "Pune", updated.City)
	assert.True(t, updated.CheckPassword("new-password"))
}

func TestSetSlaveStatus(t *testing.T) {
	f := newFixture(t)
	slave := f.createSlave(t, "rec1@bright.test")

	updated, err := f.svc.SetSlaveStatus(context.Background(), f.master.ID, slave.ID, models.STATUS_INACTIVE)
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_INACTIVE, updated.Status)

	_, err = f.svc.SetSlaveStatus(context.Background(), f.master.ID, slave.ID, "paused")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestListAndDeleteSlaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createSlave(t, "rec1@bright.test")
	f.createSlave(t, "rec2@bright.test")
	f.createSlave(t, "rec3@bright.test")

	slaves, total, err := f.svc.ListSlaves(ctx, f.master.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, slaves, 2)
	assert.EqualValues(t, 3, total)

	require.NoError(t, f.svc.DeleteSlave(ctx, f.master.ID, first.ID))
	_, total, err = f.svc.ListSlaves(ctx, f.master.ID, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.createSlave(t, "rec1@bright.test")
	inactive := f.createSlave(t, "rec2@bright.test")
	_, err := f.svc.SetSlaveStatus(ctx, f.master.ID, inactive.ID, models.STATUS_INACTIVE)
	require.NoError(t, err)

	f.store.PutJob(models.Job{OwnerID: f.master.ID, Title: "Master job", IsVisible: true})
	f.store.PutJob(models.Job{OwnerID: active.ID, Title: "Slave job", IsVisible: true})
	f.store.PutJob(models.Job{OwnerID: active.ID, Title: "Archived", IsVisible: true, IsArchived: true})
	f.store.PutJob(models.Job{OwnerID: 999, Title: "Elsewhere", IsVisible: true})

	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	sub := f.store.PutSubscription(models.Subscription{AccountID: f.master.ID, IsPaid: true, IsActive: true, ExpiryDate: &expiry})

	d, err := f.svc.Dashboard(ctx, f.master.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.TotalUsers)
	assert.EqualValues(t, 1, d.ActiveUsers)
	assert.EqualValues(t, 2, d.VisibleJobs)
	require.NotNil(t, d.SubscriptionID)
	assert.Equal(t, sub.ID, *d.SubscriptionID)
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, d.SubscriptionState)
}
