// Package billing runs subscription checkout, payment verification and the
// gateway-driven subscription lifecycle.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
	"github.com/talentbridge/jobboard/internal/pkg/pricing"
)

// CRMSync schedules a CRM refresh of an account.
type CRMSync interface {
	Enqueue(ctx context.Context, accountID uint, reason string) error
}

// WebhookArchive keeps raw webhook payloads.
type WebhookArchive interface {
	StoreWebhook(ctx context.Context, eventID string, at time.Time, payload []byte) error
}

// DowntimeFlag stores whether the gateway reported an outage.
type DowntimeFlag interface {
	SetGatewayDowntime(ctx context.Context, down bool) error
	GatewayDowntime(ctx context.Context) (bool, error)
}

type Deps struct {
	Repos    *repository.Repositories
	Gateway  Gateway
	Notifier notify.Notifier
	CRM      CRMSync
	Archive  WebhookArchive
	Downtime DowntimeFlag
	Metrics  *metrics.Collector
}

type Options struct {
	Environment config.Environment
	// Currency is used for packages that do not name one.
	Currency      string
	KeyID         string
	MonthlyCycles int
	YearlyCycles  int
	SalesAddress  string
	Now           func() time.Time
}

type Service struct {
	repos    *repository.Repositories
	gateway  Gateway
	notifier notify.Notifier
	crm      CRMSync
	archive  WebhookArchive
	downtime DowntimeFlag
	metrics  *metrics.Collector
	opts     Options
}

func NewService(d Deps, o Options) *Service {
	if o.Currency == "" {
		o.Currency = "INR"
	}
	if o.MonthlyCycles <= 0 {
		o.MonthlyCycles = 12
	}
	if o.YearlyCycles <= 0 {
		o.YearlyCycles = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		repos:    d.Repos,
		gateway:  d.Gateway,
		notifier: d.Notifier,
		crm:      d.CRM,
		archive:  d.Archive,
		downtime: d.Downtime,
		metrics:  d.Metrics,
		opts:     o,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

// planContext is everything a quote or checkout is priced from.
type planContext struct {
	account *models.Account
	pkg     *models.Package
	live    *models.Subscription
	promo   *models.Promotion
	tax     decimal.Decimal
}

func (s *Service) loadPlan(ctx context.Context, accountID, packageID uint, planType, promoCode string) (*planContext, error) {
	if planType != models.PLAN_MONTHLY && planType != models.PLAN_YEARLY {
		return nil, apperr.Invalid("planType must be %s or %s", models.PLAN_MONTHLY, models.PLAN_YEARLY)
	}

	pc := &planContext{}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		account, err := s.repos.Account.GetByID(accountID)
		if err != nil {
			return apperr.Lookup(err, "account not found", "load account")
		}
		pc.account = account
		return nil
	})
	g.Go(func() error {
		pkg, err := s.repos.Package.GetByID(packageID)
		if err != nil {
			return apperr.Lookup(err, "package not found", "load package")
		}
		pc.pkg = pkg
		return nil
	})
	g.Go(func() error {
		live, err := s.repos.Subscription.FindLive(accountID)
		if err != nil {
			return apperr.Internal(err, "load live subscription")
		}
		pc.live = live
		return nil
	})
	if code := strings.TrimSpace(promoCode); code != "" {
		g.Go(func() error {
			promo, err := s.repos.Promotion.GetByCode(code)
			if err != nil {
				return apperr.Lookup(err, "promo code not found", "load promotion")
			}
			pc.promo = promo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if pc.account.Role == models.ROLE_PA_SLAVE {
		return nil, apperr.Forbidden("sub-accounts cannot purchase subscriptions")
	}
	if !pc.account.IsActive() {
		return nil, apperr.Forbidden("account is not active")
	}
	if pc.pkg.IsFree {
		return nil, apperr.Invalid("free packages cannot be purchased")
	}
	if pc.promo != nil {
		if err := pc.promo.CheckUsable(s.now(), pc.pkg.ID); err != nil {
			return nil, apperr.Invalid("%v", err)
		}
	}

	tax, err := s.repos.Tax.PercentFor(pc.account.Country)
	if err != nil {
		return nil, apperr.Internal(err, "load tax")
	}
	pc.tax = tax
	return pc, nil
}

func (pc *planContext) price(planType string, quantity int) (pricing.Breakdown, error) {
	gross, net := pc.pkg.Prices(planType)
	in := pricing.Input{
		GrossPrice: gross,
		BasePrice:  net,
		Quantity:   quantity,
		TaxPercent: pc.tax,
	}
	if pc.promo != nil {
		in.Promo = &pricing.Promo{Type: pricing.PromoType(pc.promo.PromoType), Amount: pc.promo.Amount}
	}
	if pc.pkg.MinQuantityForDiscount > 0 && pc.pkg.QuantityDiscountPercent.IsPositive() {
		in.Tier = &pricing.QuantityTier{
			MinQuantity:     pc.pkg.MinQuantityForDiscount,
			DiscountPercent: pc.pkg.QuantityDiscountPercent,
		}
	}
	b, err := pricing.Compute(in)
	if err != nil {
		return b, apperr.Invalid("%v", err)
	}
	return b, nil
}

func normalizeQuantity(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}

func (s *Service) currencyFor(pkg *models.Package) string {
	if pkg != nil && pkg.Currency != "" {
		return pkg.Currency
	}
	return s.opts.Currency
}

// Quote prices a package for the account without side effects.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (*Quote, error) {
	pc, err := s.loadPlan(ctx, in.AccountID, in.PackageID, in.PlanType, in.PromoCode)
	if err != nil {
		return nil, err
	}
	price, err := pc.price(in.PlanType, normalizeQuantity(in.Quantity))
	if err != nil {
		return nil, err
	}

	q := &Quote{
		PackageID: pc.pkg.ID,
		PlanType:  in.PlanType,
		Currency:  s.currencyFor(pc.pkg),
		Price:     price,
	}
	if pc.promo != nil {
		q.PromoCode = pc.promo.Code
	}
	if s.downtime != nil {
		down, err := s.downtime.GatewayDowntime(ctx)
		if err != nil {
			log.Warnf("[Billing] quote: read gateway downtime flag: %v", err)
		}
		q.GatewayDegraded = down
	}
	return q, nil
}

func checkoutOutcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindInvalid, apperr.KindForbidden, apperr.KindNotFound:
		return "rejected"
	default:
		return "failed"
	}
}

// Checkout creates the gateway order or recurring subscription and stores
// a pending subscription for it.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (res *CheckoutResult, err error) {
	defer func() {
		outcome := "created"
		if err != nil {
			outcome = checkoutOutcome(err)
		}
		s.metrics.RecordCheckout(in.PlanType, outcome)
	}()

	pc, err := s.loadPlan(ctx, in.AccountID, in.PackageID, in.PlanType, in.PromoCode)
	if err != nil {
		return nil, err
	}
	if pc.live != nil && !pc.live.IsFree && !in.IsExtension {
		return nil, apperr.Invalid("already purchased")
	}
	if in.IsExtension && (pc.live == nil || pc.live.IsFree) {
		return nil, apperr.Invalid("no active subscription to extend")
	}

	quantity := normalizeQuantity(in.Quantity)
	price, err := pc.price(in.PlanType, quantity)
	if err != nil {
		return nil, err
	}

	currency := s.currencyFor(pc.pkg)
	amount := pricing.ToMinorUnits(price.Total)
	notes := map[string]string{
		"account_id": strconv.FormatUint(uint64(pc.account.ID), 10),
		"package_id": strconv.FormatUint(uint64(pc.pkg.ID), 10),
		"plan_type":  in.PlanType,
	}

	sub := &models.Subscription{
		AccountID:   pc.account.ID,
		PackageID:   pc.pkg.ID,
		PlanType:    in.PlanType,
		Quantity:    quantity,
		IsOneTime:   in.IsOneTime,
		IsExtension: in.IsExtension,
		Amount:      price.Total,
		Currency:    currency,
		Price:       datatypes.NewJSONType(price),
		Counters:    entitlements.CountersForPeriod(pc.pkg, in.PlanType, quantity),
	}
	if pc.promo != nil {
		sub.PromotionID = &pc.promo.ID
	}
	if in.IsExtension {
		sub.PriorSubscriptionID = &pc.live.ID
	}

	if in.IsOneTime {
		order, err := s.gateway.CreateOrder(ctx, CreateOrderRequest{
			Amount:   amount,
			Currency: currency,
			Receipt:  uuid.NewString(),
			Notes:    notes,
		})
		if err != nil {
			log.Errorf("[Billing] checkout: create gateway order: %v", err)
			return nil, apperr.Internal(err, "checkout: create gateway order")
		}
		sub.OrderID = &order.ID
	} else {
		planID, err := s.gatewayPlan(ctx, pc.pkg, in.PlanType, price, amount, currency)
		if err != nil {
			log.Errorf("[Billing] checkout: create gateway plan: %v", err)
			return nil, apperr.Internal(err, "checkout: create gateway plan")
		}
		gsub, err := s.gateway.CreateSubscription(ctx, CreateSubscriptionRequest{
			PlanID:     planID,
			TotalCount: s.cycles(in.PlanType),
			Quantity:   1,
			Notes:      notes,
		})
		if err != nil {
			log.Errorf("[Billing] checkout: create gateway subscription: %v", err)
			return nil, apperr.Internal(err, "checkout: create gateway subscription")
		}
		sub.RazorSubscriptionID = &gsub.ID
		sub.GatewayPlanID = planID
	}

	if err := s.repos.Subscription.Create(sub); err != nil {
		log.Errorf("[Billing] checkout: store subscription for account %d: %v", pc.account.ID, err)
		return nil, apperr.Internal(err, "checkout: store subscription")
	}
	log.Infof("[Billing] Checkout created subscription %d for account %d (package=%d plan=%s one-time=%t)",
		sub.ID, pc.account.ID, pc.pkg.ID, in.PlanType, in.IsOneTime)

	res = &CheckoutResult{
		SubscriptionID: sub.ID,
		KeyID:          s.opts.KeyID,
		Amount:         amount,
		Currency:       currency,
		Price:          price,
	}
	if sub.OrderID != nil {
		res.OrderID = *sub.OrderID
	}
	if sub.RazorSubscriptionID != nil {
		res.RazorSubscriptionID = *sub.RazorSubscriptionID
	}
	return res, nil
}

// gatewayPlan reuses the package's configured plan when the order is at
// list price and creates a dedicated plan otherwise.
func (s *Service) gatewayPlan(ctx context.Context, pkg *models.Package, planType string, price pricing.Breakdown, amount int64, currency string) (string, error) {
	listPrice := price.Quantity == 1 && price.PromoDiscount.IsZero() && price.QuantityDiscount.IsZero()
	if id := pkg.GatewayPlanID(planType); id != "" && listPrice {
		return id, nil
	}
	plan, err := s.gateway.CreatePlan(ctx, CreatePlanRequest{
		Period:   planType,
		Interval: 1,
		Name:     fmt.Sprintf("%s (%s x%d)", pkg.Name, planType, price.Quantity),
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return "", err
	}
	return plan.ID, nil
}

func (s *Service) cycles(planType string) int {
	if planType == models.PLAN_YEARLY {
		return s.opts.YearlyCycles
	}
	return s.opts.MonthlyCycles
}

// VerifyPayment activates a pending subscription after the client reports
// a payment with its gateway signature.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyInput) (*CurrentSubscription, error) {
	if strings.TrimSpace(in.PaymentID) == "" || strings.TrimSpace(in.Signature) == "" {
		return nil, apperr.Invalid("paymentId and signature are required")
	}

	var (
		sub *models.Subscription
		err error
	)
	switch {
	case in.OrderID != "":
		sub, err = s.repos.Subscription.GetByOrderID(in.OrderID)
	case in.RazorSubscriptionID != "":
		sub, err = s.repos.Subscription.GetByRazorSubscriptionID(in.RazorSubscriptionID)
	default:
		return nil, apperr.Invalid("orderId or razorSubscriptionId is required")
	}
	if err != nil {
		return nil, apperr.Lookup(err, "subscription not found", "verify: load subscription")
	}
	if sub.AccountID != in.AccountID {
		return nil, apperr.Unauthorized("subscription does not belong to this account")
	}
	if sub.IsPaid {
		return s.view(sub, true)
	}

	var valid bool
	if in.OrderID != "" {
		valid = s.gateway.VerifyPaymentSignature(in.OrderID, in.PaymentID, in.Signature)
	} else {
		valid = s.gateway.VerifySubscriptionSignature(in.PaymentID, in.RazorSubscriptionID, in.Signature)
	}
	if !valid {
		log.Warnf("[Billing] verify: invalid signature for subscription %d payment %s", sub.ID, in.PaymentID)
		return nil, apperr.Invalid("invalid payment signature")
	}

	activated, err := s.activate(ctx, sub, activation{paymentID: in.PaymentID, signatureVerified: true})
	if err != nil {
		log.Errorf("[Billing] verify: activate subscription %d: %v", sub.ID, err)
		return nil, err
	}
	fresh, err := s.repos.Subscription.GetByID(sub.ID)
	if err != nil {
		return nil, apperr.Internal(err, "verify: reload subscription")
	}
	return s.view(fresh, !activated)
}

// CurrentSubscription returns the subscription that covers the account,
// which for sub-accounts is their master's.
func (s *Service) CurrentSubscription(ctx context.Context, accountID uint) (*CurrentSubscription, error) {
	account, err := s.repos.Account.GetByID(accountID)
	if err != nil {
		return nil, apperr.Lookup(err, "account not found", "current subscription: load account")
	}
	sub, err := s.repos.Subscription.FindLive(account.BillingOwnerID())
	if err != nil {
		return nil, apperr.Internal(err, "current subscription: load subscription")
	}
	if sub == nil {
		return nil, apperr.NotFound("no active subscription")
	}
	return s.view(sub, false)
}

func (s *Service) view(sub *models.Subscription, alreadyPaid bool) (*CurrentSubscription, error) {
	pkg, err := s.repos.Package.GetByID(sub.PackageID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "load package")
	}
	return &CurrentSubscription{
		Subscription: sub,
		Package:      pkg,
		State:        sub.State(),
		Entitlements: entitlements.Summary(sub.Counters),
		AlreadyPaid:  alreadyPaid,
	}, nil
}

type activation struct {
	paymentID         string
	signatureVerified bool
	method            *models.PaymentMethod
	// periodEnd is the end of the charged cycle as reported by the gateway.
	periodEnd *time.Time
}

func expiryFor(pkg *models.Package, sub *models.Subscription, anchor time.Time) time.Time {
	if sub.IsOneTime && pkg.ValidityDays > 0 {
		return anchor.AddDate(0, 0, pkg.ValidityDays)
	}
	if sub.PlanType == models.PLAN_YEARLY {
		return anchor.AddDate(1, 0, 0)
	}
	return anchor.AddDate(0, 1, 0)
}

// activate moves a pending subscription to active and runs the follow-up
// side effects. It returns false when another caller activated it first.
func (s *Service) activate(ctx context.Context, sub *models.Subscription, a activation) (bool, error) {
	now := s.now()

	pkg, err := s.repos.Package.GetByID(sub.PackageID)
	if err != nil {
		return false, apperr.Lookup(err, "package not found", "activate: load package")
	}
	account, err := s.repos.Account.GetByID(sub.AccountID)
	if err != nil {
		return false, apperr.Lookup(err, "account not found", "activate: load account")
	}
	live, err := s.repos.Subscription.ListLive(sub.AccountID)
	if err != nil {
		return false, apperr.Internal(err, "activate: load live subscriptions")
	}

	var superseded []models.Subscription
	for _, l := range live {
		if l.ID != sub.ID {
			superseded = append(superseded, l)
		}
	}

	anchor := now
	counters := sub.Counters
	history := append([]models.SubscriptionSnapshot(nil), sub.History...)
	for _, p := range superseded {
		if sub.IsExtension && !p.IsFree {
			if p.ExpiryDate != nil && p.ExpiryDate.After(anchor) {
				anchor = *p.ExpiryDate
			}
			counters = entitlements.CarryOver(counters, p.Counters)
		}
		history = append(history, p.Snapshot(p.Counters, models.END_REASON_SUPERSEDED, now))
	}

	expiry := expiryFor(pkg, sub, anchor)
	if a.periodEnd != nil && !sub.IsExtension && a.periodEnd.After(now) {
		expiry = *a.periodEnd
	}

	fields := map[string]any{
		"is_paid":         true,
		"is_active":       true,
		"is_ended":        false,
		"start_date":      now,
		"expiry_date":     expiry,
		"last_payment_id": a.paymentID,
		"history":         datatypes.JSONSlice[models.SubscriptionSnapshot](history),
	}
	if a.signatureVerified {
		fields["is_signature_verified"] = true
	}
	if a.method != nil {
		fields["payment_method"] = datatypes.NewJSONType(*a.method)
	}
	if pkg.TrialDays > 0 && !sub.IsOneTime && !sub.IsExtension {
		fields["is_trial"] = true
		fields["trial_ends_at"] = now.AddDate(0, 0, pkg.TrialDays)
	}

	ok, err := s.repos.Subscription.MarkActive(sub.ID, fields)
	if err != nil {
		return false, apperr.Internal(err, "activate: update subscription")
	}
	if !ok {
		log.Infof("[Billing] Subscription %d was already active", sub.ID)
		return false, nil
	}
	log.Infof("[Billing] Activated subscription %d for account %d until %s", sub.ID, account.ID, expiry.Format(time.RFC3339))

	if sub.PromotionID != nil {
		s.redeemPromotion(*sub.PromotionID, sub.ID)
	}

	if sub.IsExtension && len(superseded) > 0 {
		if err := s.repos.Entitlement.ReplaceAll(sub.ID, counters); err != nil {
			log.Errorf("[Billing] activate: carry over counters into subscription %d: %v", sub.ID, err)
		}
	}
	for _, p := range superseded {
		s.supersede(ctx, &p, now)
	}

	ids := s.tenantIDs(account)
	if err := s.repos.Account.SetCurrentSubscription(ids, sub.ID); err != nil {
		log.Errorf("[Billing] activate: point accounts %v at subscription %d: %v", ids, sub.ID, err)
	}
	if err := s.repos.Package.IncrementEnrolled(pkg.ID); err != nil {
		log.Errorf("[Billing] activate: increment enrolled users of package %d: %v", pkg.ID, err)
	}

	s.notifyActivated(ctx, account, pkg, sub, a.paymentID, expiry)
	s.syncCRM(ctx, account.ID, "subscription_activated")
	return true, nil
}

// redeemPromotion counts a promo use once the payment behind it is captured.
// An exhausted limit no longer blocks a paid activation.
func (s *Service) redeemPromotion(promoID, subID uint) {
	ok, err := s.repos.Promotion.Redeem(promoID)
	if err != nil {
		log.Errorf("[Billing] activate: redeem promotion %d for subscription %d: %v", promoID, subID, err)
		return
	}
	if !ok {
		log.Warnf("[Billing] Promotion %d reached its limit before subscription %d was paid", promoID, subID)
	}
}

// supersede ends a subscription replaced by a newer purchase and stops its
// recurring charges.
func (s *Service) supersede(ctx context.Context, p *models.Subscription, now time.Time) {
	err := s.repos.Subscription.UpdateFields(p.ID, map[string]any{
		"is_active":  false,
		"is_ended":   true,
		"ended_at":   now,
		"end_reason": models.END_REASON_SUPERSEDED,
	})
	if err != nil {
		log.Errorf("[Billing] supersede subscription %d: %v", p.ID, err)
		return
	}
	if p.IsRecurring() && !p.IsFree {
		if err := s.gateway.CancelSubscription(ctx, *p.RazorSubscriptionID); err != nil {
			log.Errorf("[Billing] supersede: cancel gateway subscription %s: %v", *p.RazorSubscriptionID, err)
		}
	}
}

// tenantIDs returns the account and, for agency masters, every sub-account.
func (s *Service) tenantIDs(account *models.Account) []uint {
	ids := []uint{account.ID}
	if !account.IsPAMaster() {
		return ids
	}
	slaves, err := s.repos.Account.SlaveIDs(account.ID)
	if err != nil {
		log.Warnf("[Billing] load sub-accounts of %d: %v", account.ID, err)
		return ids
	}
	return append(ids, slaves...)
}

func (s *Service) notifyActivated(ctx context.Context, account *models.Account, pkg *models.Package, sub *models.Subscription, paymentID string, expiry time.Time) {
	price := sub.Price.Data()
	data := map[string]interface{}{
		"Name":        account.Name,
		"PackageName": pkg.Name,
		"PlanType":    sub.PlanType,
		"ExpiryDate":  expiry.Format("02 Jan 2006"),
		"Currency":    sub.Currency,
		"Subtotal":    price.Subtotal.StringFixed(2),
		"Tax":         price.Tax.StringFixed(2),
		"Total":       price.Total.StringFixed(2),
		"PaymentID":   paymentID,
	}
	s.sendEmail(ctx, notify.Email{
		To:       []string{account.Email},
		Subject:  fmt.Sprintf("Your %s subscription is active", pkg.Name),
		Template: notify.TemplateSubscriptionActivated,
		Data:     data,
	})

	if s.opts.SalesAddress != "" {
		sales := make(map[string]interface{}, len(data)+3)
		for k, v := range data {
			sales[k] = v
		}
		sales["Email"] = account.Email
		sales["Company"] = account.Company
		sales["Country"] = account.Country
		s.sendEmail(ctx, notify.Email{
			To:       []string{s.opts.SalesAddress},
			Subject:  s.salesSubject(pkg.Name, account.Email),
			Template: notify.TemplateSalesNotification,
			Data:     sales,
		})
	}

	s.inApp(ctx, models.Notification{
		AccountID:   account.ID,
		Type:        models.NOTIFICATION_SUBSCRIPTION,
		Content:     fmt.Sprintf("Your %s plan is active until %s.", pkg.Name, expiry.Format("02 Jan 2006")),
		ReferenceID: sub.ID,
	})
}

// salesSubject tags purchases made outside production so the sales inbox can
// filter them.
func (s *Service) salesSubject(pkgName, email string) string {
	subject := fmt.Sprintf("New %s purchase by %s", pkgName, email)
	if !s.opts.Environment.IsProduction() {
		subject = fmt.Sprintf("[%s] %s", s.opts.Environment, subject)
	}
	return subject
}

func (s *Service) sendEmail(ctx context.Context, email notify.Email) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendEmail(ctx, email); err != nil {
		log.Errorf("[Billing] send %s email: %v", email.Template, err)
	}
}

func (s *Service) inApp(ctx context.Context, notifications ...models.Notification) {
	if s.notifier == nil || len(notifications) == 0 {
		return
	}
	if err := s.notifier.InApp(ctx, notifications); err != nil {
		log.Errorf("[Billing] store in-app notifications: %v", err)
	}
}

func (s *Service) syncCRM(ctx context.Context, accountID uint, reason string) {
	if s.crm == nil {
		return
	}
	if err := s.crm.Enqueue(ctx, accountID, reason); err != nil {
		log.Warnf("[Billing] schedule CRM sync for account %d: %v", accountID, err)
	}
}
