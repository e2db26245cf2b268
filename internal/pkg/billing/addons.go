package billing

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
	"github.com/talentbridge/jobboard/internal/pkg/pricing"
)

// CheckoutAddOn creates a gateway order for extra entitlements on the
// account's paid subscription.
func (s *Service) CheckoutAddOn(ctx context.Context, in AddOnInput) (*AddOnCheckoutResult, error) {
	if len(in.Deltas) == 0 {
		return nil, apperr.Invalid("at least one add-on feature is required")
	}
	for feature, n := range in.Deltas {
		if !entitlements.IsKnownFeature(feature) {
			return nil, apperr.Invalid("unknown feature %s", feature)
		}
		if n <= 0 {
			return nil, apperr.Invalid("quantity of %s must be positive", feature)
		}
	}

	account, err := s.repos.Account.GetByID(in.AccountID)
	if err != nil {
		return nil, apperr.Lookup(err, "account not found", "add-on checkout: load account")
	}
	if account.Role == models.ROLE_PA_SLAVE {
		return nil, apperr.Forbidden("sub-accounts cannot purchase add-ons")
	}
	sub, err := s.repos.Subscription.FindLive(account.ID)
	if err != nil {
		return nil, apperr.Internal(err, "add-on checkout: load subscription")
	}
	if sub == nil || sub.IsFree {
		return nil, apperr.Invalid("add-ons require an active paid subscription")
	}
	pkg, err := s.repos.Package.GetByID(sub.PackageID)
	if err != nil {
		return nil, apperr.Lookup(err, "package not found", "add-on checkout: load package")
	}
	tax, err := s.repos.Tax.PercentFor(account.Country)
	if err != nil {
		return nil, apperr.Internal(err, "add-on checkout: load tax")
	}

	price, err := pricing.ComputeAddOn(pkg.UnitAddOnPrices(), in.Deltas, tax)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}

	currency := s.currencyFor(pkg)
	amount := pricing.ToMinorUnits(price.Total)
	order, err := s.gateway.CreateOrder(ctx, CreateOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  uuid.NewString(),
		Notes: map[string]string{
			"account_id":      strconv.FormatUint(uint64(account.ID), 10),
			"subscription_id": strconv.FormatUint(uint64(sub.ID), 10),
			"kind":            "addon",
		},
	})
	if err != nil {
		log.Errorf("[Billing] add-on checkout: create gateway order: %v", err)
		return nil, apperr.Internal(err, "add-on checkout: create gateway order")
	}

	addOn := &models.SubscriptionAddOn{
		SubscriptionID: sub.ID,
		AccountID:      account.ID,
		OrderID:        order.ID,
		Deltas:         datatypes.NewJSONType(in.Deltas),
		Price:          datatypes.NewJSONType(price),
		Amount:         price.Total,
	}
	if err := s.repos.AddOn.Create(addOn); err != nil {
		log.Errorf("[Billing] add-on checkout: store add-on for subscription %d: %v", sub.ID, err)
		return nil, apperr.Internal(err, "add-on checkout: store add-on")
	}

	return &AddOnCheckoutResult{
		AddOnID:  addOn.ID,
		OrderID:  order.ID,
		KeyID:    s.opts.KeyID,
		Amount:   amount,
		Currency: currency,
		Price:    price,
	}, nil
}

// VerifyAddOn marks a paid add-on and applies its deltas exactly once.
func (s *Service) VerifyAddOn(ctx context.Context, in VerifyAddOnInput) (*CurrentSubscription, error) {
	if strings.TrimSpace(in.OrderID) == "" || strings.TrimSpace(in.PaymentID) == "" || strings.TrimSpace(in.Signature) == "" {
		return nil, apperr.Invalid("orderId, paymentId and signature are required")
	}
	addOn, err := s.repos.AddOn.GetByOrderID(in.OrderID)
	if err != nil {
		return nil, apperr.Lookup(err, "add-on not found", "verify add-on: load add-on")
	}
	if addOn.AccountID != in.AccountID {
		return nil, apperr.Unauthorized("add-on does not belong to this account")
	}

	alreadyPaid := addOn.IsPaid
	if !alreadyPaid {
		if !s.gateway.VerifyPaymentSignature(in.OrderID, in.PaymentID, in.Signature) {
			log.Warnf("[Billing] verify add-on: invalid signature for order %s", in.OrderID)
			return nil, apperr.Invalid("invalid payment signature")
		}
		applied, err := s.applyAddOn(ctx, addOn, in.PaymentID)
		if err != nil {
			return nil, err
		}
		alreadyPaid = !applied
	}

	sub, err := s.repos.Subscription.GetByID(addOn.SubscriptionID)
	if err != nil {
		return nil, apperr.Lookup(err, "subscription not found", "verify add-on: load subscription")
	}
	return s.view(sub, alreadyPaid)
}

// applyAddOn flips the add-on to paid and tops up the counters. It reports
// false when the add-on had already been applied.
func (s *Service) applyAddOn(ctx context.Context, addOn *models.SubscriptionAddOn, paymentID string) (bool, error) {
	applied, err := s.repos.AddOn.ApplyPaid(addOn, paymentID, s.now())
	if err != nil {
		log.Errorf("[Billing] apply add-on %d to subscription %d: %v", addOn.ID, addOn.SubscriptionID, err)
		return false, apperr.Internal(err, "apply add-on")
	}
	if !applied {
		return false, nil
	}

	deltas := addOn.Deltas.Data()
	log.Infof("[Billing] Applied add-on %d to subscription %d: %v", addOn.ID, addOn.SubscriptionID, deltas)

	account, err := s.repos.Account.GetByID(addOn.AccountID)
	if err != nil {
		log.Warnf("[Billing] apply add-on %d: load account: %v", addOn.ID, err)
		return true, nil
	}
	s.sendEmail(ctx, notify.Email{
		To:       []string{account.Email},
		Subject:  "Your add-on purchase is active",
		Template: notify.TemplateAddOnActivated,
		Data: map[string]interface{}{
			"Name":     account.Name,
			"Deltas":   deltas,
			"Currency": s.opts.Currency,
			"Total":    addOn.Amount.StringFixed(2),
		},
	})
	s.syncCRM(ctx, account.ID, "addon_purchased")
	return true, nil
}
