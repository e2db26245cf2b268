package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
)

var errMissingEntity = errors.New("payload is missing a required entity")

type webhookEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			Entity subscriptionEntity `json:"entity"`
		} `json:"subscription"`
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type subscriptionEntity struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	CurrentEnd *int64 `json:"current_end"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	Bank             string `json:"bank"`
	Wallet           string `json:"wallet"`
	VPA              string `json:"vpa"`
	ErrorDescription string `json:"error_description"`
	Card             *struct {
		Last4   string `json:"last4"`
		Network string `json:"network"`
	} `json:"card"`
}

type orderEntity struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
}

func (e *webhookEnvelope) subscription() *subscriptionEntity {
	if e.Payload.Subscription == nil || e.Payload.Subscription.Entity.ID == "" {
		return nil
	}
	return &e.Payload.Subscription.Entity
}

func (e *webhookEnvelope) payment() *paymentEntity {
	if e.Payload.Payment == nil || e.Payload.Payment.Entity.ID == "" {
		return nil
	}
	return &e.Payload.Payment.Entity
}

func (e *webhookEnvelope) order() *orderEntity {
	if e.Payload.Order == nil || e.Payload.Order.Entity.ID == "" {
		return nil
	}
	return &e.Payload.Order.Entity
}

func (p *paymentEntity) paymentMethod() models.PaymentMethod {
	m := models.PaymentMethod{
		Method: p.Method,
		Bank:   p.Bank,
		Wallet: p.Wallet,
		VPA:    p.VPA,
	}
	if p.Card != nil {
		m.CardLast4 = p.Card.Last4
		m.CardNetwork = p.Card.Network
	}
	return m
}

func (se *subscriptionEntity) periodEnd() *time.Time {
	if se.CurrentEnd == nil || *se.CurrentEnd <= 0 {
		return nil
	}
	t := time.Unix(*se.CurrentEnd, 0)
	return &t
}

// webhookEventID prefers the gateway's event id and falls back to a hash
// of the payload.
func webhookEventID(in WebhookInput) string {
	if id := strings.TrimSpace(in.EventID); id != "" {
		return id
	}
	sum := sha256.Sum256(in.Body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// HandleWebhook reconciles one gateway event. It never fails: the outcome
// is recorded in the event ledger and metrics, and the caller always
// acknowledges the delivery.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookInput) WebhookResult {
	res := WebhookResult{EventID: webhookEventID(in)}

	var env webhookEnvelope
	if err := json.Unmarshal(in.Body, &env); err != nil || env.Event == "" {
		log.Warnf("[Webhook] Discarding unparsable payload %s: %v", res.EventID, err)
		res.Outcome = OutcomeInvalidPayload
		s.metrics.RecordWebhook("unknown", res.Outcome)
		return res
	}
	res.Event = env.Event

	if !s.gateway.VerifyWebhookSignature(in.Body, in.Signature) {
		log.Warnf("[Webhook] Invalid signature for %s event %s", env.Event, res.EventID)
		res.Outcome = OutcomeInvalidSignature
		s.metrics.RecordWebhook(env.Event, res.Outcome)
		return res
	}

	created, stored, err := s.repos.WebhookEvent.CreateIfNotExists(&models.PaymentWebhookEvent{
		Provider:        models.PAYMENT_PROVIDER_RAZORPAY,
		ProviderEventID: res.EventID,
		EventType:       env.Event,
		PayloadJSON:     string(in.Body),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] record event %s: %v", res.EventID, err)
		res.Outcome = OutcomeFailed
		s.metrics.RecordWebhook(env.Event, res.Outcome)
		return res
	}
	if !created && stored.ProcessedAt != nil {
		log.Infof("[Webhook] Skipping already processed %s event %s", env.Event, res.EventID)
		res.Outcome = OutcomeDuplicate
		s.metrics.RecordWebhook(env.Event, res.Outcome)
		return res
	}
	if created {
		s.archiveWebhook(ctx, res.EventID, in.Body)
	} else {
		// Recorded but never marked processed: a crashed attempt or a delivery
		// still in flight. Handlers are guarded by conditional updates, so the
		// loser of a race reports a replay instead of applying twice.
		log.Infof("[Webhook] Reprocessing unfinished %s event %s", env.Event, res.EventID)
	}

	outcome, err := s.dispatch(ctx, &env)
	errText := ""
	if err != nil {
		log.Errorf("[Webhook] %s event %s: %v", env.Event, res.EventID, err)
		errText = err.Error()
		if outcome == OutcomeProcessed {
			outcome = OutcomeFailed
		}
	}
	if err := s.repos.WebhookEvent.MarkProcessed(stored.ID, outcome, errText); err != nil {
		log.Errorf("[Webhook] mark event %s processed: %v", res.EventID, err)
	}

	res.Outcome = outcome
	s.metrics.RecordWebhook(env.Event, outcome)
	return res
}

func (s *Service) archiveWebhook(ctx context.Context, eventID string, body []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.StoreWebhook(ctx, eventID, s.now(), body); err != nil {
		log.Warnf("[Webhook] archive event %s: %v", eventID, err)
	}
}

func (s *Service) dispatch(ctx context.Context, env *webhookEnvelope) (string, error) {
	switch env.Event {
	case EventSubscriptionCharged:
		return s.onSubscriptionCharged(ctx, env)
	case EventSubscriptionPending:
		return s.onSubscriptionStopped(ctx, env, models.END_REASON_PENDING)
	case EventSubscriptionHalted:
		return s.onSubscriptionStopped(ctx, env, models.END_REASON_HALTED)
	case EventSubscriptionCancelled:
		return s.onSubscriptionStopped(ctx, env, models.END_REASON_CANCELLED)
	case EventOrderPaid:
		return s.onOrderPaid(ctx, env)
	case EventPaymentFailed:
		return s.onPaymentFailed(ctx, env)
	case EventDowntimeStarted, EventDowntimeResolved:
		return s.onDowntime(ctx, env.Event == EventDowntimeStarted)
	default:
		return OutcomeIgnored, nil
	}
}

// lookupSubscription treats an unknown gateway id as an event for another
// system rather than a failure.
func lookupSubscription(sub *models.Subscription, err error) (*models.Subscription, string, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, OutcomeIgnored, nil
	}
	if err != nil {
		return nil, OutcomeFailed, err
	}
	return sub, "", nil
}

func (s *Service) onSubscriptionCharged(ctx context.Context, env *webhookEnvelope) (string, error) {
	se, pe := env.subscription(), env.payment()
	if se == nil || pe == nil {
		return OutcomeIgnored, errMissingEntity
	}
	if pe.Status != "captured" {
		return OutcomeIgnored, nil
	}

	sub, outcome, err := lookupSubscription(s.repos.Subscription.GetByRazorSubscriptionID(se.ID))
	if sub == nil {
		if outcome == OutcomeIgnored {
			log.Warnf("[Webhook] Charge for unknown subscription %s", se.ID)
		}
		return outcome, err
	}

	method := pe.paymentMethod()
	if sub.LastPaymentID == pe.ID {
		err := s.repos.Subscription.UpdateFields(sub.ID, map[string]any{
			"payment_method": datatypes.NewJSONType(method),
		})
		return OutcomeReplayed, err
	}

	if !sub.IsPaid {
		_, err := s.activate(ctx, sub, activation{paymentID: pe.ID, method: &method, periodEnd: se.periodEnd()})
		return OutcomeProcessed, err
	}
	if sub.IsEnded {
		log.Warnf("[Webhook] Charge %s on ended subscription %d", pe.ID, sub.ID)
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, s.renew(ctx, sub, pe.ID, method, se.periodEnd())
}

// renew starts a new billing period on an active recurring subscription.
func (s *Service) renew(ctx context.Context, sub *models.Subscription, paymentID string, method models.PaymentMethod, periodEnd *time.Time) error {
	pkg, err := s.repos.Package.GetByID(sub.PackageID)
	if err != nil {
		return err
	}
	account, err := s.repos.Account.GetByID(sub.AccountID)
	if err != nil {
		return err
	}

	now := s.now()
	expiry := expiryFor(pkg, sub, now)
	if periodEnd != nil && periodEnd.After(now) {
		expiry = *periodEnd
	}
	history := append([]models.SubscriptionSnapshot(nil), sub.History...)
	history = append(history, sub.Snapshot(sub.Counters, models.END_REASON_RENEWED, now))

	err = s.repos.Subscription.UpdateFields(sub.ID, map[string]any{
		"start_date":         now,
		"expiry_date":        expiry,
		"last_payment_id":    paymentID,
		"last_payment_error": "",
		"payment_method":     datatypes.NewJSONType(method),
		"history":            datatypes.JSONSlice[models.SubscriptionSnapshot](history),
		"is_trial":           false,
	})
	if err != nil {
		return err
	}
	if err := s.repos.Entitlement.ReplaceAll(sub.ID, entitlementsForRenewal(pkg, sub)); err != nil {
		return err
	}
	log.Infof("[Billing] Renewed subscription %d with payment %s until %s", sub.ID, paymentID, expiry.Format(time.RFC3339))

	s.notifyActivated(ctx, account, pkg, sub, paymentID, expiry)
	s.syncCRM(ctx, account.ID, "subscription_renewed")
	return nil
}

func (s *Service) onSubscriptionStopped(ctx context.Context, env *webhookEnvelope, reason string) (string, error) {
	se := env.subscription()
	if se == nil {
		return OutcomeIgnored, errMissingEntity
	}
	sub, outcome, err := lookupSubscription(s.repos.Subscription.GetByRazorSubscriptionID(se.ID))
	if sub == nil {
		return outcome, err
	}
	if sub.IsEnded {
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, s.EndSubscription(ctx, sub.ID, reason, sub.IsLive())
}

// onOrderPaid completes one-time purchases and add-ons whose client never
// reported back.
func (s *Service) onOrderPaid(ctx context.Context, env *webhookEnvelope) (string, error) {
	oe, pe := env.order(), env.payment()
	orderID, paymentID := "", ""
	if oe != nil {
		orderID = oe.ID
	}
	if pe != nil {
		paymentID = pe.ID
		if orderID == "" {
			orderID = pe.OrderID
		}
	}
	if orderID == "" {
		return OutcomeIgnored, errMissingEntity
	}

	sub, err := s.repos.Subscription.GetByOrderID(orderID)
	if err == nil {
		if sub.IsPaid {
			return OutcomeReplayed, nil
		}
		a := activation{paymentID: paymentID}
		if pe != nil {
			m := pe.paymentMethod()
			a.method = &m
		}
		activated, err := s.activate(ctx, sub, a)
		if err != nil {
			return OutcomeFailed, err
		}
		if !activated {
			return OutcomeReplayed, nil
		}
		return OutcomeProcessed, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeFailed, err
	}

	addOn, err := s.repos.AddOn.GetByOrderID(orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	applied, err := s.applyAddOn(ctx, addOn, paymentID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !applied {
		return OutcomeReplayed, nil
	}
	return OutcomeProcessed, nil
}

func (s *Service) onPaymentFailed(ctx context.Context, env *webhookEnvelope) (string, error) {
	pe := env.payment()
	if pe == nil {
		return OutcomeIgnored, errMissingEntity
	}

	var (
		sub *models.Subscription
		err error
	)
	switch se := env.subscription(); {
	case se != nil:
		sub, err = s.repos.Subscription.GetByRazorSubscriptionID(se.ID)
	case pe.OrderID != "":
		sub, err = s.repos.Subscription.GetByOrderID(pe.OrderID)
	default:
		return OutcomeIgnored, nil
	}
	sub, outcome, err := lookupSubscription(sub, err)
	if sub == nil {
		return outcome, err
	}

	reason := pe.ErrorDescription
	if reason == "" {
		reason = "payment failed"
	}
	if err := s.repos.Subscription.UpdateFields(sub.ID, map[string]any{"last_payment_error": reason}); err != nil {
		return OutcomeFailed, err
	}

	account, err := s.repos.Account.GetByID(sub.AccountID)
	if err != nil {
		return OutcomeFailed, err
	}
	name := "subscription"
	if pkg, err := s.repos.Package.GetByID(sub.PackageID); err == nil {
		name = pkg.Name
	}
	s.sendEmail(ctx, notifyPaymentFailed(account, name, reason))
	s.inApp(ctx, models.Notification{
		AccountID:   account.ID,
		Type:        models.NOTIFICATION_PAYMENT_FAILED,
		Content:     "Your payment for " + name + " failed: " + reason,
		ReferenceID: sub.ID,
	})
	return OutcomeProcessed, nil
}

func (s *Service) onDowntime(ctx context.Context, started bool) (string, error) {
	if s.downtime == nil {
		return OutcomeIgnored, nil
	}
	if err := s.downtime.SetGatewayDowntime(ctx, started); err != nil {
		return OutcomeFailed, err
	}
	log.Infof("[Webhook] Gateway downtime flag set to %t", started)
	return OutcomeProcessed, nil
}

func entitlementsForRenewal(pkg *models.Package, sub *models.Subscription) []models.EntitlementCounter {
	return entitlements.CountersForPeriod(pkg, sub.PlanType, sub.Quantity)
}

func notifyPaymentFailed(account *models.Account, packageName, reason string) notify.Email {
	return notify.Email{
		To:       []string{account.Email},
		Subject:  fmt.Sprintf("Payment for your %s subscription failed", packageName),
		Template: notify.TemplatePaymentFailed,
		Data: map[string]interface{}{
			"Name":        account.Name,
			"PackageName": packageName,
			"Reason":      reason,
		},
	}
}
