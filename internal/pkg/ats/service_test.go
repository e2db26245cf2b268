package ats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/app/repository/memory"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeBilling struct {
	released [][]uint
	current  *billing.CurrentSubscription
}

func (b *fakeBilling) CurrentSubscription(context.Context, uint) (*billing.CurrentSubscription, error) {
	if b.current == nil {
		return nil, apperr.NotFound("no active subscription")
	}
	return b.current, nil
}

func (b *fakeBilling) ReleaseJobs(_ context.Context, jobIDs []uint) (billing.ClosureResult, error) {
	b.released = append(b.released, jobIDs)
	return billing.ClosureResult{JobIDs: jobIDs}, nil
}

type fixture struct {
	store   *memory.Store
	billing *fakeBilling
	svc     *Service
	account *models.Account
	sub     *models.Subscription
}

func newFixture(t *testing.T, counters ...models.EntitlementCounter) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), billing: &fakeBilling{}}
	f.account = f.store.PutAccount(models.Account{
		Name:    "Acme Hiring",
		Email:   "ats@acme.test",
		Role:    models.ROLE_EMPLOYER,
		Status:  models.STATUS_ACTIVE,
		Country: "IN",
	})
	if counters == nil {
		counters = []models.EntitlementCounter{
			{Feature: entitlements.FeatureJobs, Remaining: 3, Allowance: 3},
			{Feature: entitlements.FeatureViews, Remaining: 1, Allowance: 1},
			{Feature: entitlements.FeatureTranslations, Remaining: 1, Allowance: 1},
		}
	}
	expiry := testNow.AddDate(0, 0, 20)
	f.sub = f.store.PutSubscription(models.Subscription{
		AccountID:  f.account.ID,
		PlanType:   models.PLAN_MONTHLY,
		Quantity:   1,
		IsPaid:     true,
		IsActive:   true,
		ExpiryDate: &expiry,
		Counters:   counters,
	})
	f.svc = NewService(f.store.Repositories(), f.billing, nil)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) remaining(t *testing.T, feature string) int {
	t.Helper()
	c, ok := entitlements.Find(f.store.Subscription(f.sub.ID).Counters, feature)
	require.True(t, ok)
	return c.Remaining
}

func coords(lat, lng float64) (*float64, *float64) { return &lat, &lng }

func jobInput(ref, title string) JobInput {
	lat, lng := coords(12.97, 77.59)
	return JobInput{ExternalRef: ref, Title: title, Description: "Build things", Latitude: lat, Longitude: lng}
}

func TestPostJobsConsumesOnlyNewJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PostJobs(ctx, f.account.ID, []JobInput{jobInput("ext-1", "Backend Engineer"), jobInput("", "Designer")}, false)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, 2, res.Consumed)
	assert.True(t, res.Jobs[0].Created)
	assert.Equal(t, "IN", res.Jobs[0].Job.Country)
	assert.Equal(t, 1, res.Jobs[0].Job.Positions)
	assert.Equal(t, 1, f.remaining(t, entitlements.FeatureJobs))

	res, err = f.svc.PostJobs(ctx, f.account.ID, []JobInput{jobInput("ext-1", "Senior Backend Engineer")}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Consumed)
	assert.False(t, res.Jobs[0].Created)
	assert.Equal(t, "Senior Backend Engineer", res.Jobs[0].Job.Title)
	assert.Equal(t, 1, f.remaining(t, entitlements.FeatureJobs))
}

func TestPostJobsRejectsWhenQuotaShort(t *testing.T) {
	f := newFixture(t)

	inputs := []JobInput{jobInput("a", "A"), jobInput("b", "B"), jobInput("c", "C"), jobInput("d", "D")}
	_, err := f.svc.PostJobs(context.Background(), f.account.ID, inputs, false)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 3, f.remaining(t, entitlements.FeatureJobs))

	jobs, total, err := f.svc.ListJobs(context.Background(), f.account.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Zero(t, total)
}

func TestPostJobsTranslation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PostJobs(ctx, f.account.ID, []JobInput{jobInput("t-1", "Translator")}, true)
	require.NoError(t, err)
	assert.True(t, res.Jobs[0].Job.IsTranslated)
	assert.Equal(t, 0, f.remaining(t, entitlements.FeatureTranslations))
	assert.Equal(t, 2, f.remaining(t, entitlements.FeatureJobs))

	_, err = f.svc.PostJobs(ctx, f.account.ID, []JobInput{jobInput("t-2", "Translator II")}, true)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 2, f.remaining(t, entitlements.FeatureJobs))

	// updates never consume, so translation quota does not matter
	_, err = f.svc.PostJobs(ctx, f.account.ID, []JobInput{jobInput("t-1", "Translator (remote)")}, true)
	require.NoError(t, err)
}

func TestPostJobsNeedsSubscription(t *testing.T) {
	f := newFixture(t)
	other := f.store.PutAccount(models.Account{Name: "No Plan", Role: models.ROLE_EMPLOYER, Status: models.STATUS_ACTIVE})

	_, err := f.svc.PostJobs(context.Background(), other.ID, []JobInput{jobInput("", "A")}, false)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.svc.PostJobs(context.Background(), f.account.ID, nil, false)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestPostJobsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Repositories().Account.UpdateFields(f.account.ID, map[string]any{"status": models.STATUS_DISABLED}))

	_, err := f.svc.PostJobs(context.Background(), f.account.ID, []JobInput{jobInput("", "A")}, false)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestUpdateJobChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.PutAccount(models.Account{Name: "Rival", Role: models.ROLE_EMPLOYER, Status: models.STATUS_ACTIVE})
	job := f.store.PutJob(models.Job{OwnerID: f.account.ID, Title: "Old", IsVisible: true, Positions: 1})

	_, err := f.svc.UpdateJob(ctx, other.ID, job.ID, jobInput("", "Hijacked"))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	in := jobInput("", "New")
	in.Positions = 4
	updated, err := f.svc.UpdateJob(ctx, f.account.ID, job.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, 4, updated.Positions)

	_, err = f.svc.UpdateJob(ctx, f.account.ID, 999, in)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCloseJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.store.PutJob(models.Job{OwnerID: f.account.ID, Title: "Open", IsVisible: true, Positions: 2})

	closed, err := f.svc.CloseJob(ctx, f.account.ID, job.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed)
	assert.True(t, closed.IsArchived)
	assert.False(t, closed.IsVisible)
	assert.Zero(t, closed.Positions)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, [][]uint{{job.ID}}, f.billing.released)

	_, err = f.svc.CloseJob(ctx, f.account.ID, job.ID)
	require.NoError(t, err)
	assert.Len(t, f.billing.released, 1)

	_, err = f.svc.UpdateJob(ctx, f.account.ID, job.ID, jobInput("", "Reopen"))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestListJobsPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.store.PutJob(models.Job{OwnerID: f.account.ID, Title: "Job", IsVisible: true})
	}
	f.store.PutJob(models.Job{OwnerID: f.account.ID + 100, Title: "Foreign"})

	jobs, total, err := f.svc.ListJobs(context.Background(), f.account.ID, 3, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.EqualValues(t, 5, total)
}

func TestSearchCandidatesScopedToCountry(t *testing.T) {
	f := newFixture(t)
	f.store.PutCandidate(models.CandidateProfile{DisplayName: "Asha", Title: "Go developer", Country: "IN", IsVisible: true, VideoURL: "v.mp4"})
	f.store.PutCandidate(models.CandidateProfile{DisplayName: "Ravi", Title: "Go developer", Country: "IN", IsVisible: true})
	f.store.PutCandidate(models.CandidateProfile{DisplayName: "Anna", Title: "Go developer", Country: "DE", IsVisible: true})
	f.store.PutCandidate(models.CandidateProfile{DisplayName: "Hidden", Title: "Go developer", Country: "IN"})

	found, total, err := f.svc.SearchCandidates(context.Background(), f.account.ID, repository.CandidateFilter{Country: "DE", Keyword: "go"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, c := range found {
		assert.Equal(t, "IN", c.Country)
	}

	found, _, err = f.svc.SearchCandidates(context.Background(), f.account.ID, repository.CandidateFilter{HasVideo: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Asha", found[0].DisplayName)

	lat := 12.0
	_, _, err = f.svc.SearchCandidates(context.Background(), f.account.ID, repository.CandidateFilter{Latitude: &lat})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestViewResumeChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.store.PutCandidate(models.CandidateProfile{DisplayName: "Asha", Country: "IN", IsVisible: true, ResumeURL: "https://cdn.test/asha.pdf"})
	second := f.store.PutCandidate(models.CandidateProfile{DisplayName: "Ravi", Country: "IN", IsVisible: true})

	resume, err := f.svc.ViewResume(ctx, f.account.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, resume.AlreadyViewed)
	assert.Equal(t, "https://cdn.test/asha.pdf", resume.ResumeURL)
	assert.Equal(t, 0, f.remaining(t, entitlements.FeatureViews))

	resume, err = f.svc.ViewResume(ctx, f.account.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, resume.AlreadyViewed)

	_, err = f.svc.ViewResume(ctx, f.account.ID, second.ID)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 1, f.store.ResumeViewCount())

	_, err = f.svc.ViewResume(ctx, f.account.ID, 999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestViewResumeUnlimited(t *testing.T) {
	f := newFixture(t, models.EntitlementCounter{Feature: entitlements.FeatureViews, IsUnlimited: true})
	for i := 0; i < 3; i++ {
		c := f.store.PutCandidate(models.CandidateProfile{Country: "IN", IsVisible: true})
		_, err := f.svc.ViewResume(context.Background(), f.account.ID, c.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.store.ResumeViewCount())
}

func TestSubscriptionSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Subscription(context.Background(), f.account.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	f.billing.current = &billing.CurrentSubscription{State: "active"}
	cur, err := f.svc.Subscription(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", cur.State)
}
