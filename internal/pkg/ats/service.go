// Package ats serves the applicant-tracking integrations: job posting
// against the subscription quota, candidate discovery and resume unlocks.
package ats

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/entitlements"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
)

const (
	DefaultJobLimit = 20
	MaxJobLimit     = 100
	MaxJobsPerPost  = 50
)

// Billing is the part of the billing service the ATS surface needs.
type Billing interface {
	CurrentSubscription(ctx context.Context, accountID uint) (*billing.CurrentSubscription, error)
	ReleaseJobs(ctx context.Context, jobIDs []uint) (billing.ClosureResult, error)
}

type Service struct {
	repos   *repository.Repositories
	billing Billing
	metrics *metrics.Collector
	now     func() time.Time
}

func NewService(repos *repository.Repositories, b Billing, m *metrics.Collector) *Service {
	return &Service{repos: repos, billing: b, metrics: m, now: time.Now}
}

func (s *Service) account(accountID uint, op string) (*models.Account, error) {
	account, err := s.repos.Account.GetByID(accountID)
	if err != nil {
		return nil, apperr.Lookup(err, "account not found", op)
	}
	if !account.IsActive() {
		return nil, apperr.Forbidden("account is not active")
	}
	return account, nil
}

// liveSubscription returns the paid or free subscription covering the
// account's tenant.
func (s *Service) liveSubscription(account *models.Account, op string) (*models.Subscription, error) {
	sub, err := s.repos.Subscription.FindLive(account.BillingOwnerID())
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	if sub == nil {
		return nil, apperr.Invalid("no active subscription")
	}
	return sub, nil
}

// PostJobs creates or, when the external reference is already known,
// updates jobs. Every created job consumes one job posting and, when
// translate is set, one translation.
func (s *Service) PostJobs(ctx context.Context, accountID uint, inputs []JobInput, translate bool) (*PostJobsResult, error) {
	if len(inputs) == 0 {
		return nil, apperr.Invalid("at least one job is required")
	}
	if len(inputs) > MaxJobsPerPost {
		return nil, apperr.Invalid("at most %d jobs can be posted at once", MaxJobsPerPost)
	}
	account, err := s.account(accountID, "post jobs: load account")
	if err != nil {
		return nil, err
	}
	sub, err := s.liveSubscription(account, "post jobs: load subscription")
	if err != nil {
		return nil, err
	}

	existing := make([]*models.Job, len(inputs))
	fresh := 0
	for i, in := range inputs {
		ref := strings.TrimSpace(in.ExternalRef)
		if ref == "" {
			fresh++
			continue
		}
		job, err := s.repos.Job.GetByExternalRef(account.ID, ref)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh++
		case err != nil:
			return nil, apperr.Internal(err, "post jobs: load job by external reference")
		default:
			existing[i] = job
		}
	}

	if fresh > 0 {
		if !entitlements.CanConsume(sub.Counters, entitlements.FeatureJobs, fresh) {
			return nil, apperr.Invalid("job posting quota exhausted")
		}
		if translate && !entitlements.CanConsume(sub.Counters, entitlements.FeatureTranslations, fresh) {
			return nil, apperr.Invalid("translation quota exhausted")
		}
	}

	res := &PostJobsResult{}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if existing[i] != nil {
			job, err := s.updateJob(existing[i], in)
			if err != nil {
				return res, err
			}
			res.Jobs = append(res.Jobs, PostedJob{Job: job, Created: false})
			continue
		}
		job, err := s.createJob(account, sub, in, translate)
		if err != nil {
			return res, err
		}
		res.Jobs = append(res.Jobs, PostedJob{Job: job, Created: true})
		res.Consumed++
	}

	log.Infof("[ATS] Account %d posted %d jobs (%d new, translate=%t)", account.ID, len(res.Jobs), res.Consumed, translate)
	return res, nil
}

func (s *Service) consume(sub *models.Subscription, feature string) error {
	ok, err := s.repos.Entitlement.Consume(sub.ID, feature, 1)
	if err != nil {
		return apperr.Internal(err, "consume "+feature)
	}
	if !ok {
		return apperr.Invalid("%v: %s", entitlements.ErrQuotaExhausted, feature)
	}
	s.metrics.RecordConsumed(feature, 1)
	return nil
}

func (s *Service) refund(sub *models.Subscription, feature string) {
	if err := s.repos.Entitlement.Refund(sub.ID, feature, 1); err != nil {
		log.Errorf("[ATS] refund %s to subscription %d: %v", feature, sub.ID, err)
	}
}

func (s *Service) createJob(account *models.Account, sub *models.Subscription, in JobInput, translate bool) (*models.Job, error) {
	if err := s.consume(sub, entitlements.FeatureJobs); err != nil {
		return nil, err
	}
	if translate {
		if err := s.consume(sub, entitlements.FeatureTranslations); err != nil {
			s.refund(sub, entitlements.FeatureJobs)
			return nil, err
		}
	}

	job := in.toJob(account)
	job.IsTranslated = translate
	if err := s.repos.Job.Create(job); err != nil {
		s.refund(sub, entitlements.FeatureJobs)
		if translate {
			s.refund(sub, entitlements.FeatureTranslations)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Invalid("a job with externalRef %s already exists", in.ExternalRef)
		}
		log.Errorf("[ATS] post jobs: create job for account %d: %v", account.ID, err)
		return nil, apperr.Internal(err, "post jobs: create job")
	}
	return job, nil
}

func (s *Service) updateJob(job *models.Job, in JobInput) (*models.Job, error) {
	if job.IsClosed {
		return nil, apperr.Invalid("job %d is closed", job.ID)
	}
	if err := s.repos.Job.UpdateFields(job.ID, in.fields()); err != nil {
		log.Errorf("[ATS] update job %d: %v", job.ID, err)
		return nil, apperr.Internal(err, "update job")
	}
	updated, err := s.repos.Job.GetByID(job.ID)
	if err != nil {
		return nil, apperr.Internal(err, "update job: reload")
	}
	return updated, nil
}

// ownedJob loads a job and checks that the caller posted it.
func (s *Service) ownedJob(accountID, jobID uint, op string) (*models.Job, error) {
	job, err := s.repos.Job.GetByID(jobID)
	if err != nil {
		return nil, apperr.Lookup(err, "job not found", op)
	}
	if job.OwnerID != accountID {
		return nil, apperr.Unauthorized("job does not belong to this account")
	}
	return job, nil
}

func (s *Service) UpdateJob(ctx context.Context, accountID, jobID uint, in JobInput) (*models.Job, error) {
	if _, err := s.account(accountID, "update job: load account"); err != nil {
		return nil, err
	}
	job, err := s.ownedJob(accountID, jobID, "update job: load job")
	if err != nil {
		return nil, err
	}
	return s.updateJob(job, in)
}

// CloseJob archives a job and releases its open conversations. Closing a
// closed job is a no-op.
func (s *Service) CloseJob(ctx context.Context, accountID, jobID uint) (*models.Job, error) {
	job, err := s.ownedJob(accountID, jobID, "close job: load job")
	if err != nil {
		return nil, err
	}
	if job.IsClosed {
		return job, nil
	}

	err = s.repos.Job.UpdateFields(job.ID, map[string]any{
		"is_visible":  false,
		"is_archived": true,
		"is_closed":   true,
		"positions":   0,
		"closed_at":   s.now(),
	})
	if err != nil {
		return nil, apperr.Internal(err, "close job: archive")
	}
	s.metrics.RecordJobsClosed(1)

	if s.billing != nil {
		if res, err := s.billing.ReleaseJobs(ctx, []uint{job.ID}); err != nil {
			log.Errorf("[ATS] close job %d: release: %v", job.ID, err)
		} else {
			log.Infof("[ATS] Closed job %d (%d conversations, %d notified)", job.ID, res.Conversations, res.Notified)
		}
	}

	closed, err := s.repos.Job.GetByID(job.ID)
	if err != nil {
		return nil, apperr.Internal(err, "close job: reload")
	}
	return closed, nil
}

func (s *Service) ListJobs(ctx context.Context, accountID uint, skip, limit int) ([]models.Job, int64, error) {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	if limit > MaxJobLimit {
		limit = MaxJobLimit
	}
	if skip < 0 {
		skip = 0
	}
	jobs, total, err := s.repos.Job.ListByOwner(accountID, skip, limit)
	if err != nil {
		return nil, 0, apperr.Internal(err, "list jobs")
	}
	return jobs, total, nil
}

// SearchCandidates is always scoped to the caller's country. The count is
// of every match, not just the returned page.
func (s *Service) SearchCandidates(ctx context.Context, accountID uint, filter repository.CandidateFilter) ([]models.CandidateProfile, int64, error) {
	account, err := s.account(accountID, "search candidates: load account")
	if err != nil {
		return nil, 0, err
	}
	filter.Country = account.Country
	if (filter.Latitude == nil) != (filter.Longitude == nil) {
		return nil, 0, apperr.Invalid("lat and lng must be given together")
	}

	candidates, total, err := s.repos.Candidate.Search(filter.Normalize())
	if err != nil {
		log.Errorf("[ATS] search candidates for account %d: %v", account.ID, err)
		return nil, 0, apperr.Internal(err, "search candidates")
	}
	return candidates, total, nil
}

// ViewResume unlocks a candidate's resume. The first view by an employer
// costs one resume view; later views of the same candidate are free.
func (s *Service) ViewResume(ctx context.Context, accountID, candidateID uint) (*Resume, error) {
	account, err := s.account(accountID, "view resume: load account")
	if err != nil {
		return nil, err
	}
	candidate, err := s.repos.Candidate.GetByID(candidateID)
	if err != nil {
		return nil, apperr.Lookup(err, "candidate not found", "view resume: load candidate")
	}
	sub, err := s.liveSubscription(account, "view resume: load subscription")
	if err != nil {
		return nil, err
	}

	view := &models.ResumeView{EmployerID: account.ID, CandidateID: candidate.ID, SubscriptionID: sub.ID}
	created, err := s.repos.ResumeView.CreateIfNotExists(view)
	if err != nil {
		return nil, apperr.Internal(err, "view resume: record view")
	}
	if created {
		if err := s.consume(sub, entitlements.FeatureViews); err != nil {
			if derr := s.repos.ResumeView.Delete(view.ID); derr != nil {
				log.Errorf("[ATS] view resume: drop view %d after failed consume: %v", view.ID, derr)
			}
			return nil, err
		}
		log.Infof("[ATS] Account %d unlocked candidate %d", account.ID, candidate.ID)
	}

	return &Resume{
		Candidate:     candidate,
		ResumeURL:     candidate.ResumeURL,
		ResumeText:    candidate.ResumeText,
		AlreadyViewed: !created,
	}, nil
}

// Subscription returns the entitlement snapshot of the caller's tenant.
func (s *Service) Subscription(ctx context.Context, accountID uint) (*billing.CurrentSubscription, error) {
	return s.billing.CurrentSubscription(ctx, accountID)
}
