package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/app/models"
)

func testPackage() *models.Package {
	return &models.Package{
		Allowances: []models.Allowance{
			{Feature: FeatureJobs, Monthly: 5, Yearly: 60},
			{Feature: FeatureViews, Unlimited: true},
		},
	}
}

func TestCountersForPeriod(t *testing.T) {
	counters := CountersForPeriod(testPackage(), models.PLAN_MONTHLY, 1)
	require.Len(t, counters, 3)

	jobs, ok := Find(counters, FeatureJobs)
	require.True(t, ok)
	assert.Equal(t, 5, jobs.Remaining)
	assert.Equal(t, 5, jobs.Allowance)

	views, _ := Find(counters, FeatureViews)
	assert.True(t, views.IsUnlimited)

	translations, ok := Find(counters, FeatureTranslations)
	require.True(t, ok)
	assert.Equal(t, 0, translations.Remaining)
	assert.False(t, translations.IsUnlimited)
}

func TestCountersForPeriodYearlyQuantity(t *testing.T) {
	counters := CountersForPeriod(testPackage(), models.PLAN_YEARLY, 2)
	jobs, _ := Find(counters, FeatureJobs)
	assert.Equal(t, 120, jobs.Remaining)
}

func TestCanConsume(t *testing.T) {
	counters := []models.EntitlementCounter{
		{Feature: FeatureJobs, Remaining: 1},
		{Feature: FeatureViews, IsUnlimited: true},
	}
	assert.True(t, CanConsume(counters, FeatureJobs, 1))
	assert.False(t, CanConsume(counters, FeatureJobs, 2))
	assert.True(t, CanConsume(counters, FeatureViews, 1000))
	assert.False(t, CanConsume(counters, FeatureTranslations, 1))
}

func TestCarryOver(t *testing.T) {
	fresh := []models.EntitlementCounter{
		{Feature: FeatureJobs, Remaining: 5, Allowance: 5},
		{Feature: FeatureViews, IsUnlimited: true},
		{Feature: FeatureTranslations, Remaining: 0},
	}
	prior := []models.EntitlementCounter{
		{Feature: FeatureJobs, Remaining: 3, Allowance: 5},
		{Feature: FeatureViews, Remaining: 10},
		{Feature: FeatureTranslations, IsUnlimited: true},
	}

	out := CarryOver(fresh, prior)
	jobs, _ := Find(out, FeatureJobs)
	assert.Equal(t, 8, jobs.Remaining)
	views, _ := Find(out, FeatureViews)
	assert.True(t, views.IsUnlimited)
	tr, _ := Find(out, FeatureTranslations)
	assert.Equal(t, 0, tr.Remaining)

	// input slice is untouched
	assert.Equal(t, 5, fresh[0].Remaining)
}

func TestSummary(t *testing.T) {
	s := Summary([]models.EntitlementCounter{{Feature: FeatureJobs, Remaining: 3}, {Feature: FeatureViews, IsUnlimited: true}})
	assert.Equal(t, Entitlement{Count: 3}, s[FeatureJobs])
	assert.Equal(t, Entitlement{IsUnlimited: true}, s[FeatureViews])
	assert.True(t, IsKnownFeature(FeatureTranslations))
	assert.False(t, IsKnownFeature("numberOfCats"))
}
