package entitlements

import (
	"errors"

	"github.com/talentbridge/jobboard/app/models"
)

const (
	FeatureJobs         = "numberOfJobs"
	FeatureViews        = "numberOfViews"
	FeatureTranslations = "numberOfTranslations"
)

// Features lists the counters every subscription carries, even when its
// package grants zero of them.
var Features = []string{FeatureJobs, FeatureViews, FeatureTranslations}

var ErrQuotaExhausted = errors.New("entitlement quota exhausted")

// Entitlement is the API view of a single counter.
type Entitlement struct {
	Count       int  `json:"count"`
	IsUnlimited bool `json:"isUnlimited"`
}

func IsKnownFeature(feature string) bool {
	for _, f := range Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CountersForPeriod builds fresh counters for one billing period of pkg.
// Allowances scale with the purchased quantity.
func CountersForPeriod(pkg *models.Package, planType string, quantity int) []models.EntitlementCounter {
	if quantity <= 0 {
		quantity = 1
	}
	seen := make(map[string]struct{}, len(Features))
	out := make([]models.EntitlementCounter, 0, len(Features))

	add := func(feature string) {
		if _, ok := seen[feature]; ok {
			return
		}
		seen[feature] = struct{}{}
		c := models.EntitlementCounter{Feature: feature}
		if a, ok := pkg.AllowanceFor(feature); ok {
			if a.Unlimited {
				c.IsUnlimited = true
			} else {
				n := a.Monthly
				if planType == models.PLAN_YEARLY {
					n = a.Yearly
				}
				c.Allowance = n * quantity
				c.Remaining = c.Allowance
			}
		}
		out = append(out, c)
	}

	for _, f := range Features {
		add(f)
	}
	for _, a := range pkg.Allowances {
		add(a.Feature)
	}
	return out
}

func Find(counters []models.EntitlementCounter, feature string) (models.EntitlementCounter, bool) {
	for _, c := range counters {
		if c.Feature == feature {
			return c, true
		}
	}
	return models.EntitlementCounter{}, false
}

// CanConsume reports whether n units of feature are available.
func CanConsume(counters []models.EntitlementCounter, feature string, n int) bool {
	c, ok := Find(counters, feature)
	if !ok {
		return false
	}
	return c.IsUnlimited || c.Remaining >= n
}

// CarryOver adds the unused finite quota of a superseded period to fresh
// counters. Unlimited counters stay unlimited and carry nothing.
func CarryOver(fresh, prior []models.EntitlementCounter) []models.EntitlementCounter {
	out := make([]models.EntitlementCounter, len(fresh))
	copy(out, fresh)
	for i := range out {
		if out[i].IsUnlimited {
			continue
		}
		if p, ok := Find(prior, out[i].Feature); ok && !p.IsUnlimited && p.Remaining > 0 {
			out[i].Remaining += p.Remaining
			out[i].Allowance += p.Remaining
		}
	}
	return out
}

// Summary maps counters to their API representation keyed by feature.
func Summary(counters []models.EntitlementCounter) map[string]Entitlement {
	out := make(map[string]Entitlement, len(counters))
	for _, c := range counters {
		out[c.Feature] = Entitlement{Count: c.Remaining, IsUnlimited: c.IsUnlimited}
	}
	return out
}
