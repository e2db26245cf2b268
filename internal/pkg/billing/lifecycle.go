package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
)

const expiryBatchSize = 200

// EndSubscription ends a subscription, moves the account onto the free tier
// and, when closeJobs is set, closes the tenant's open positions.
func (s *Service) EndSubscription(ctx context.Context, subscriptionID uint, reason string, closeJobs bool) error {
	sub, err := s.repos.Subscription.GetByID(subscriptionID)
	if err != nil {
		return apperr.Lookup(err, "subscription not found", "end subscription: load subscription")
	}
	if sub.IsEnded {
		return nil
	}

	now := s.now()
	err = s.repos.Subscription.UpdateFields(sub.ID, map[string]any{
		"is_active":  false,
		"is_ended":   true,
		"ended_at":   now,
		"end_reason": reason,
	})
	if err != nil {
		return apperr.Internal(err, "end subscription: update subscription")
	}
	log.Infof("[Billing] Ended subscription %d of account %d (%s)", sub.ID, sub.AccountID, reason)

	account, err := s.repos.Account.GetByID(sub.AccountID)
	if err != nil {
		return apperr.Lookup(err, "account not found", "end subscription: load account")
	}
	ids := s.tenantIDs(account)

	var errs []error
	if !sub.IsFree {
		if err := s.fallbackToFree(account, sub, ids, now); err != nil {
			errs = append(errs, err)
		}
	}

	closed := 0
	if closeJobs {
		res, err := s.closeJobs(ctx, ids, now)
		if err != nil {
			errs = append(errs, err)
		}
		closed = len(res.JobIDs)
	}

	if !sub.IsFree {
		s.notifyEnded(ctx, account, sub, closed)
		s.syncCRM(ctx, account.ID, "subscription_ended")
	}
	return errors.Join(errs...)
}

// fallbackToFree points the tenant at another live subscription or, when
// there is none, at a fresh free-tier one.
func (s *Service) fallbackToFree(account *models.Account, ended *models.Subscription, ids []uint, now time.Time) error {
	live, err := s.repos.Subscription.FindLive(account.ID)
	if err != nil {
		return apperr.Internal(err, "free fallback: load live subscription")
	}
	if live != nil {
		if err := s.repos.Account.SetCurrentSubscription(ids, live.ID); err != nil {
			return apperr.Internal(err, "free fallback: point accounts")
		}
		return nil
	}

	pkg, err := s.repos.Package.FindFree(account.Country)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Billing] No free package for country %q, account %d has no subscription", account.Country, account.ID)
		return nil
	}
	if err != nil {
		return apperr.Internal(err, "free fallback: load free package")
	}

	priorID := ended.ID
	free := &models.Subscription{
		AccountID:           account.ID,
		PackageID:           pkg.ID,
		PlanType:            models.PLAN_MONTHLY,
		Quantity:            1,
		IsFree:              true,
		IsActive:            true,
		StartDate:           &now,
		Currency:            s.currencyFor(pkg),
		Counters:            entitlements.CountersForPeriod(pkg, models.PLAN_MONTHLY, 1),
		PriorSubscriptionID: &priorID,
	}
	if err := s.repos.Subscription.Create(free); err != nil {
		return apperr.Internal(err, "free fallback: create free subscription")
	}
	if err := s.repos.Account.SetCurrentSubscription(ids, free.ID); err != nil {
		return apperr.Internal(err, "free fallback: point accounts")
	}
	log.Infof("[Billing] Account %d moved to free subscription %d", account.ID, free.ID)
	return nil
}

func (s *Service) notifyEnded(ctx context.Context, account *models.Account, sub *models.Subscription, closedJobs int) {
	name := "subscription"
	if pkg, err := s.repos.Package.GetByID(sub.PackageID); err == nil {
		name = pkg.Name
	}
	s.sendEmail(ctx, notify.Email{
		To:       []string{account.Email},
		Subject:  fmt.Sprintf("Your %s subscription has ended", name),
		Template: notify.TemplateSubscriptionEnded,
		Data: map[string]interface{}{
			"Name":        account.Name,
			"PackageName": name,
			"ClosedJobs":  closedJobs,
		},
	})
	s.inApp(ctx, models.Notification{
		AccountID:   account.ID,
		Type:        models.NOTIFICATION_SUBSCRIPTION_END,
		Content:     fmt.Sprintf("Your %s subscription has ended.", name),
		ReferenceID: sub.ID,
	})
}

// ExpireDue ends one-time subscriptions past their expiry date. Their jobs
// stay open.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repos.Subscription.ListDueForExpiry(now, expiryBatchSize)
	if err != nil {
		return 0, apperr.Internal(err, "expire due: list subscriptions")
	}

	ended := 0
	var errs []error
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return ended, err
		}
		if err := s.EndSubscription(ctx, sub.ID, models.END_REASON_EXPIRED, false); err != nil {
			log.Errorf("[Billing] expire due: end subscription %d: %v", sub.ID, err)
			errs = append(errs, err)
			continue
		}
		ended++
	}
	if ended > 0 {
		log.Infof("[Billing] Expired %d subscriptions", ended)
	}
	return ended, errors.Join(errs...)
}
