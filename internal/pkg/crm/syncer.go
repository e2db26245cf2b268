package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
)

// Enqueuer is the job queue as seen by the CRM
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// QueueSyncer schedules CRM syncs. Outside production it does nothing.
type QueueSyncer struct {
	queue Enqueuer
	env   config.Environment
}

func NewQueueSyncer(queue Enqueuer, env config.Environment) *QueueSyncer {
	return &QueueSyncer{queue: queue, env: env}
}

func (q *QueueSyncer) Enqueue(ctx context.Context, accountID uint, reason string) error {
	if !q.env.IsProduction() {
		return nil
	}
	payload := jobqueue.CRMSyncJobPayload{AccountID: accountID, Reason: reason}
	_, err := q.queue.EnqueueJob(ctx, jobqueue.JobTypeCRMSync, payload.ToMap())
	return err
}

// Syncer performs the sync for one account
type Syncer struct {
	api           API
	accounts      repository.AccountRepository
	subscriptions repository.SubscriptionRepository
	packages      repository.PackageRepository
	env           config.Environment
}

func NewSyncer(api API, repos *repository.Repositories, env config.Environment) *Syncer {
	return &Syncer{
		api:           api,
		accounts:      repos.Account,
		subscriptions: repos.Subscription,
		packages:      repos.Package,
		env:           env,
	}
}

// Sync upserts the account's company and contact and stores the CRM id
func (s *Syncer) Sync(ctx context.Context, accountID uint) error {
	if !s.env.IsProduction() {
		log.Debugf("[CRM] Skipping sync of account %d in %s", accountID, s.env)
		return nil
	}

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("crm sync: load account %d: %w", accountID, err)
	}

	contact := Contact{
		Email:   account.Email,
		Name:    account.Name,
		Phone:   account.Phone,
		Country: account.Country,
		Role:    account.Role,
	}

	if company := strings.TrimSpace(account.Company); company != "" {
		companyID, err := s.api.UpsertCompany(ctx, Company{Name: company, Country: account.Country, Domain: emailDomain(account.Email)})
		if err != nil {
			return fmt.Errorf("crm sync: upsert company: %w", err)
		}
		contact.CompanyID = companyID
	}

	sub, err := s.subscriptions.FindLive(account.BillingOwnerID())
	if err != nil {
		return fmt.Errorf("crm sync: load subscription: %w", err)
	}
	if sub != nil {
		contact.PlanType = sub.PlanType
		contact.SubscriptionStatus = sub.State()
		contact.SubscriptionExpiry = sub.ExpiryDate
		if pkg, err := s.packages.GetByID(sub.PackageID); err == nil {
			contact.PackageName = pkg.Name
		}
	}

	contactID, err := s.api.UpsertContact(ctx, contact)
	if err != nil {
		return fmt.Errorf("crm sync: upsert contact: %w", err)
	}
	if contactID != account.CRMContactID {
		if err := s.accounts.UpdateFields(account.ID, map[string]any{"crm_contact_id": contactID}); err != nil {
			return fmt.Errorf("crm sync: store contact id: %w", err)
		}
	}
	log.Infof("[CRM] Synced account %d as contact %s", account.ID, contactID)
	return nil
}

// HandleJob runs a queued crm_sync job
func (s *Syncer) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	p, err := jobqueue.CRMSyncJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid crm payload: %w", err)
	}
	if p.AccountID == 0 {
		return errors.New("crm payload missing account id")
	}
	return s.Sync(ctx, p.AccountID)
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}
