// Package memory is an in-process implementation of the repository
// interfaces. It backs service and handler tests.
package memory

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
)

// Store holds every record. Tests may seed and inspect the maps directly
// through the Put and Get helpers.
type Store struct {
	mu     sync.Mutex
	nextID uint
	clock  func() time.Time

	accounts      map[uint]*models.Account
	credentials   map[uint]*models.APICredential
	jobs          map[uint]*models.Job
	candidates    map[uint]*models.CandidateProfile
	resumeViews   map[uint]*models.ResumeView
	conversations map[uint]*models.Conversation
	savedJobs     map[uint]*models.SavedJob
	notifications []models.Notification
	packages      map[uint]*models.Package
	promotions    map[uint]*models.Promotion
	taxes         map[string]decimal.Decimal
	subscriptions map[uint]*models.Subscription
	counters      map[uint][]models.EntitlementCounter
	addOns        map[uint]*models.SubscriptionAddOn
	events        map[uint]*models.PaymentWebhookEvent

	counterErr error
}

func New() *Store {
	return &Store{
		clock:         time.Now,
		accounts:      map[uint]*models.Account{},
		credentials:   map[uint]*models.APICredential{},
		jobs:          map[uint]*models.Job{},
		candidates:    map[uint]*models.CandidateProfile{},
		resumeViews:   map[uint]*models.ResumeView{},
		conversations: map[uint]*models.Conversation{},
		savedJobs:     map[uint]*models.SavedJob{},
		packages:      map[uint]*models.Package{},
		promotions:    map[uint]*models.Promotion{},
		taxes:         map[string]decimal.Decimal{},
		subscriptions: map[uint]*models.Subscription{},
		counters:      map[uint][]models.EntitlementCounter{},
		addOns:        map[uint]*models.SubscriptionAddOn{},
		events:        map[uint]*models.PaymentWebhookEvent{},
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Account:      accountRepo{s},
		Credential:   credentialRepo{s},
		Job:          jobRepo{s},
		Candidate:    candidateRepo{s},
		ResumeView:   resumeViewRepo{s},
		Conversation: conversationRepo{s},
		SavedJob:     savedJobRepo{s},
		Notification: notificationRepo{s},
		Package:      packageRepo{s},
		Promotion:    promotionRepo{s},
		Tax:          taxRepo{s},
		Subscription: subscriptionRepo{s},
		Entitlement:  entitlementRepo{s},
		AddOn:        addOnRepo{s},
		WebhookEvent: webhookEventRepo{s},
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

// seq assigns an id when the record has none and keeps nextID ahead of
// ids chosen by the caller.
func (s *Store) seq(id *uint) {
	if *id == 0 {
		*id = s.id()
		return
	}
	if *id > s.nextID {
		s.nextID = *id
	}
}

func (s *Store) PutAccount(a models.Account) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&a.ID)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	s.accounts[a.ID] = &a
	return &a
}

func (s *Store) PutPackage(p models.Package) *models.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&p.ID)
	s.packages[p.ID] = &p
	return &p
}

func (s *Store) PutPromotion(p models.Promotion) *models.Promotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&p.ID)
	p.Code = models.NormalizePromoCode(p.Code)
	s.promotions[p.ID] = &p
	return &p
}

// FailCounterWrites makes every counter top-up return err until it is
// called again with nil.
func (s *Store) FailCounterWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterErr = err
}

func (s *Store) PutTax(country string, percent decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxes[country] = percent
}

func (s *Store) PutJob(j models.Job) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&j.ID)
	s.jobs[j.ID] = &j
	return &j
}

func (s *Store) PutCandidate(c models.CandidateProfile) *models.CandidateProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&c.ID)
	s.candidates[c.ID] = &c
	return &c
}

func (s *Store) PutConversation(c models.Conversation) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&c.ID)
	s.conversations[c.ID] = &c
	return &c
}

func (s *Store) PutSavedJob(j models.SavedJob) *models.SavedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq(&j.ID)
	s.savedJobs[j.ID] = &j
	return &j
}

func (s *Store) PutSubscription(sub models.Subscription) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertSubscription(&sub)
	return s.subscriptionCopy(sub.ID)
}

func (s *Store) Account(id uint) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[id]
}

func (s *Store) Package(id uint) models.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.packages[id]
}

func (s *Store) Promotion(id uint) models.Promotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.promotions[id]
}

func (s *Store) AddOn(id uint) models.SubscriptionAddOn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.addOns[id]
}

func (s *Store) Job(id uint) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *Store) Conversation(id uint) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

func (s *Store) Subscription(id uint) models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.subscriptionCopy(id)
}

// SubscriptionsOf returns every subscription of the account, oldest first.
func (s *Store) SubscriptionsOf(accountID uint) []models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, id := range s.sortedSubscriptionIDs() {
		if s.subscriptions[id].AccountID == accountID {
			out = append(out, *s.subscriptionCopy(id))
		}
	}
	return out
}

func (s *Store) SavedJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.savedJobs)
}

func (s *Store) ResumeViewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resumeViews)
}

func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *Store) WebhookEvents() []models.PaymentWebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PaymentWebhookEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) insertSubscription(sub *models.Subscription) {
	s.seq(&sub.ID)
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock()
	}
	counters := make([]models.EntitlementCounter, len(sub.Counters))
	for i, c := range sub.Counters {
		s.seq(&c.ID)
		c.SubscriptionID = sub.ID
		counters[i] = c
		sub.Counters[i].ID = c.ID
		sub.Counters[i].SubscriptionID = sub.ID
	}
	s.counters[sub.ID] = counters
	stored := *sub
	stored.Counters = nil
	stored.AddOns = nil
	s.subscriptions[sub.ID] = &stored
}

func (s *Store) subscriptionCopy(id uint) *models.Subscription {
	stored, ok := s.subscriptions[id]
	if !ok {
		return nil
	}
	out := *stored
	out.Counters = s.sortedCounters(id)
	for _, a := range s.addOns {
		if a.SubscriptionID == id {
			out.AddOns = append(out.AddOns, *a)
		}
	}
	sort.Slice(out.AddOns, func(i, j int) bool { return out.AddOns[i].ID < out.AddOns[j].ID })
	return &out
}

func (s *Store) sortedCounters(subID uint) []models.EntitlementCounter {
	out := append([]models.EntitlementCounter(nil), s.counters[subID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

func (s *Store) sortedSubscriptionIDs() []uint {
	ids := make([]uint, 0, len(s.subscriptions))
	for id := range s.subscriptions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var naming = schema.NamingStrategy{}

// applyFields copies column/value pairs onto a model the way an UPDATE
// would, resolving columns with GORM's default naming.
func applyFields(target any, fields map[string]any) error {
	rv := reflect.ValueOf(target).Elem()
	rt := rv.Type()
	columns := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		columns[naming.ColumnName("", rt.Field(i).Name)] = i
	}
	for col, val := range fields {
		idx, ok := columns[col]
		if !ok {
			return fmt.Errorf("unknown column %s on %s", col, rt.Name())
		}
		if err := assign(rv.Field(idx), val); err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
	}
	return nil
}

func assign(field reflect.Value, val any) error {
	ft := field.Type()
	if val == nil {
		field.Set(reflect.Zero(ft))
		return nil
	}
	v := reflect.ValueOf(val)
	switch {
	case v.Type().AssignableTo(ft):
		field.Set(v)
	case ft.Kind() == reflect.Ptr && v.Type().AssignableTo(ft.Elem()):
		p := reflect.New(ft.Elem())
		p.Elem().Set(v)
		field.Set(p)
	case v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type().AssignableTo(ft):
		field.Set(v.Elem())
	case v.Type().ConvertibleTo(ft):
		field.Set(v.Convert(ft))
	default:
		return fmt.Errorf("cannot assign %s to %s", v.Type(), ft)
	}
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type accountRepo struct{ s *Store }

func (r accountRepo) Create(a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	for _, existing := range r.s.accounts {
		if existing.Email == a.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	r.s.seq(&a.ID)
	a.CreatedAt = r.s.clock()
	stored := *a
	r.s.accounts[a.ID] = &stored
	return nil
}

func (r accountRepo) GetByID(id uint) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *a
	return &out, nil
}

func (r accountRepo) GetByEmail(email string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range r.s.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r accountRepo) UpdateFields(id uint, fields map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return applyFields(a, fields)
}

func (r accountRepo) Delete(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.accounts, id)
	return nil
}

func (r accountRepo) slaves(masterID uint) []models.Account {
	var out []models.Account
	for _, a := range r.s.accounts {
		if a.MasterID != nil && *a.MasterID == masterID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r accountRepo) ListSlaves(masterID uint, offset, limit int) ([]models.Account, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.slaves(masterID)
	return page(all, offset, limit), int64(len(all)), nil
}

func (r accountRepo) GetSlave(masterID, slaveID uint) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[slaveID]
	if !ok || a.MasterID == nil || *a.MasterID != masterID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *a
	return &out, nil
}

func (r accountRepo) SlaveIDs(masterID uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uint
	for _, a := range r.slaves(masterID) {
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r accountRepo) CountSlaves(masterID uint) (int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total, active int64
	for _, a := range r.slaves(masterID) {
		total++
		if a.Status == models.STATUS_ACTIVE {
			active++
		}
	}
	return total, active, nil
}

func (r accountRepo) SetCurrentSubscription(accountIDs []uint, subscriptionID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range accountIDs {
		if a, ok := r.s.accounts[id]; ok {
			sid := subscriptionID
			a.CurrentSubscriptionID = &sid
		}
	}
	return nil
}

type credentialRepo struct{ s *Store }

func (r credentialRepo) Create(c *models.APICredential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq(&c.ID)
	stored := *c
	r.s.credentials[c.ID] = &stored
	return nil
}

func (r credentialRepo) GetActiveByAPIKey(apiKey string) (*models.APICredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	apiKey = strings.TrimSpace(apiKey)
	for _, c := range r.s.credentials {
		if apiKey != "" && c.APIKey == apiKey && c.RevokedAt == nil {
			out := *c
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r credentialRepo) TouchLastUsed(id uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.credentials[id]; ok {
		c.LastUsedAt = &at
	}
	return nil
}

func (r credentialRepo) Revoke(apiKey string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	apiKey = strings.TrimSpace(apiKey)
	for _, c := range r.s.credentials {
		if apiKey != "" && c.APIKey == apiKey && c.RevokedAt == nil {
			revokedAt := at
			c.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

type jobRepo struct{ s *Store }

func (r jobRepo) Create(j *models.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if j.ExternalRef != nil {
		for _, existing := range r.s.jobs {
			if existing.OwnerID == j.OwnerID && existing.ExternalRef != nil && *existing.ExternalRef == *j.ExternalRef {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	r.s.seq(&j.ID)
	j.CreatedAt = r.s.clock()
	stored := *j
	r.s.jobs[j.ID] = &stored
	return nil
}

func (r jobRepo) GetByID(id uint) (*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *j
	return &out, nil
}

func (r jobRepo) GetByExternalRef(ownerID uint, ref string) (*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.OwnerID == ownerID && j.ExternalRef != nil && *j.ExternalRef == ref {
			out := *j
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r jobRepo) UpdateFields(id uint, fields map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return applyFields(j, fields)
}

func (r jobRepo) ListByOwner(ownerID uint, offset, limit int) ([]models.Job, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []models.Job
	for _, j := range r.s.jobs {
		if j.OwnerID == ownerID {
			all = append(all, *j)
		}
	}
	sort.Slice(all, func(i, k int) bool { return all[i].ID > all[k].ID })
	return page(all, offset, limit), int64(len(all)), nil
}

func (r jobRepo) CountVisibleByOwners(ownerIDs []uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, j := range r.s.jobs {
		if containsID(ownerIDs, j.OwnerID) && j.IsVisible && !j.IsArchived {
			n++
		}
	}
	return n, nil
}

func (r jobRepo) ArchiveVisibleByOwners(ownerIDs []uint, at time.Time) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uint
	for _, j := range r.s.jobs {
		if !containsID(ownerIDs, j.OwnerID) || !j.IsVisible || j.IsArchived {
			continue
		}
		j.IsVisible = false
		j.IsArchived = true
		j.IsClosed = true
		j.Positions = 0
		closedAt := at
		j.ClosedAt = &closedAt
		ids = append(ids, j.ID)
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids, nil
}

type candidateRepo struct{ s *Store }

func (r candidateRepo) GetByID(id uint) (*models.CandidateProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.candidates[id]
	if !ok || !c.IsVisible {
		return nil, gorm.ErrRecordNotFound
	}
	out := *c
	return &out, nil
}

// Search applies the scalar filters. Geo filters are not evaluated.
func (r candidateRepo) Search(f repository.CandidateFilter) ([]models.CandidateProfile, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f = f.Normalize()
	keyword := strings.ToLower(f.Keyword)

	var all []models.CandidateProfile
	for _, c := range r.s.candidates {
		switch {
		case !c.IsVisible:
			continue
		case f.Country != "" && c.Country != f.Country:
			continue
		case f.Gender != "" && c.Gender != f.Gender:
			continue
		case f.MinYears > 0 && c.ExperienceYears < f.MinYears:
			continue
		case f.HasVideo && c.VideoURL == "":
			continue
		case f.HasAudio && c.AudioURL == "":
			continue
		case f.HasPhoto && c.PhotoURL == "":
			continue
		case keyword != "" && !strings.Contains(strings.ToLower(c.Title+" "+c.Summary), keyword):
			continue
		}
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, f.Skip, f.Limit), int64(len(all)), nil
}

type resumeViewRepo struct{ s *Store }

func (r resumeViewRepo) CreateIfNotExists(v *models.ResumeView) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.resumeViews {
		if existing.EmployerID == v.EmployerID && existing.CandidateID == v.CandidateID {
			*v = *existing
			return false, nil
		}
	}
	r.s.seq(&v.ID)
	v.CreatedAt = r.s.clock()
	stored := *v
	r.s.resumeViews[v.ID] = &stored
	return true, nil
}

func (r resumeViewRepo) Delete(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.resumeViews, id)
	return nil
}

type conversationRepo struct{ s *Store }

func (r conversationRepo) CloseOpenForJobs(jobIDs []uint, at time.Time) ([]models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var open []models.Conversation
	for _, c := range r.s.conversations {
		if !containsID(jobIDs, c.JobID) || c.Status != models.CONVERSATION_OPEN || c.IsHired {
			continue
		}
		open = append(open, *c)
		c.Status = models.CONVERSATION_CLOSED
		c.IsArchived = true
		c.IsRejected = true
		closedAt := at
		c.ClosedAt = &closedAt
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, nil
}

type savedJobRepo struct{ s *Store }

func (r savedJobRepo) DeleteByJobs(jobIDs []uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sj := range r.s.savedJobs {
		if containsID(jobIDs, sj.JobID) {
			delete(r.s.savedJobs, id)
			n++
		}
	}
	return n, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateBatch(notifications []models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range notifications {
		r.s.seq(&n.ID)
		r.s.notifications = append(r.s.notifications, n)
	}
	return nil
}

type packageRepo struct{ s *Store }

func (r packageRepo) GetByID(id uint) (*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.packages[id]
	if !ok || !p.IsActive {
		return nil, gorm.ErrRecordNotFound
	}
	out := *p
	return &out, nil
}

func (r packageRepo) FindFree(country string) (*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var fallback *models.Package
	for _, p := range r.s.packages {
		if !p.IsFree || !p.IsActive {
			continue
		}
		if p.Country == strings.TrimSpace(country) {
			out := *p
			return &out, nil
		}
		if p.Country == "" {
			fallback = p
		}
	}
	if fallback == nil {
		return nil, gorm.ErrRecordNotFound
	}
	out := *fallback
	return &out, nil
}

func (r packageRepo) IncrementEnrolled(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.packages[id]; ok {
		p.EnrolledUsers++
	}
	return nil
}

type promotionRepo struct{ s *Store }

func (r promotionRepo) GetByCode(code string) (*models.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	code = models.NormalizePromoCode(code)
	for _, p := range r.s.promotions {
		if p.Code == code {
			out := *p
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r promotionRepo) Redeem(id uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.promotions[id]
	if !ok || (p.MaxRedemptions > 0 && p.Redemptions >= p.MaxRedemptions) {
		return false, nil
	}
	p.Redemptions++
	return true, nil
}

type taxRepo struct{ s *Store }

func (r taxRepo) PercentFor(country string) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.taxes[strings.TrimSpace(country)], nil
}

type subscriptionRepo struct{ s *Store }

func (r subscriptionRepo) Create(sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.subscriptions {
		if sub.OrderID != nil && existing.OrderID != nil && *sub.OrderID == *existing.OrderID {
			return gorm.ErrDuplicatedKey
		}
		if sub.RazorSubscriptionID != nil && existing.RazorSubscriptionID != nil && *sub.RazorSubscriptionID == *existing.RazorSubscriptionID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.s.insertSubscription(sub)
	return nil
}

func (r subscriptionRepo) GetByID(id uint) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub := r.s.subscriptionCopy(id); sub != nil {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r subscriptionRepo) find(match func(*models.Subscription) bool) (*models.Subscription, error) {
	for _, id := range r.s.sortedSubscriptionIDs() {
		if match(r.s.subscriptions[id]) {
			return r.s.subscriptionCopy(id), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r subscriptionRepo) GetByOrderID(orderID string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(func(s *models.Subscription) bool { return s.OrderID != nil && *s.OrderID == orderID })
}

func (r subscriptionRepo) GetByRazorSubscriptionID(razorSubscriptionID string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(func(s *models.Subscription) bool {
		return s.RazorSubscriptionID != nil && *s.RazorSubscriptionID == razorSubscriptionID
	})
}

// live returns the account's live subscriptions, paid before free and
// newest first.
func (r subscriptionRepo) live(accountID uint) []models.Subscription {
	var out []models.Subscription
	for _, id := range r.s.sortedSubscriptionIDs() {
		sub := r.s.subscriptions[id]
		if sub.AccountID == accountID && sub.IsLive() {
			out = append(out, *r.s.subscriptionCopy(id))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsFree != out[j].IsFree {
			return !out[i].IsFree
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r subscriptionRepo) FindLive(accountID uint) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	live := r.live(accountID)
	if len(live) == 0 {
		return nil, nil
	}
	return &live[0], nil
}

func (r subscriptionRepo) ListLive(accountID uint) ([]models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	live := r.live(accountID)
	sort.SliceStable(live, func(i, j int) bool { return live[i].ID > live[j].ID })
	return live, nil
}

func (r subscriptionRepo) UpdateFields(id uint, fields map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return applyFields(sub, fields)
}

func (r subscriptionRepo) MarkActive(id uint, fields map[string]any) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok || sub.IsPaid {
		return false, nil
	}
	return true, applyFields(sub, fields)
}

func (r subscriptionRepo) ListDueForExpiry(now time.Time, limit int) ([]models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Subscription
	for _, id := range r.s.sortedSubscriptionIDs() {
		sub := r.s.subscriptions[id]
		if !sub.IsLive() || sub.IsRecurring() || sub.ExpiryDate == nil || !sub.ExpiryDate.Before(now) {
			continue
		}
		out = append(out, *r.s.subscriptionCopy(id))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiryDate.Before(*out[j].ExpiryDate) })
	return page(out, 0, limit), nil
}

type entitlementRepo struct{ s *Store }

func (r entitlementRepo) List(subscriptionID uint) ([]models.EntitlementCounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedCounters(subscriptionID), nil
}

func (r entitlementRepo) index(subscriptionID uint, feature string) int {
	for i, c := range r.s.counters[subscriptionID] {
		if c.Feature == feature {
			return i
		}
	}
	return -1
}

func (r entitlementRepo) Consume(subscriptionID uint, feature string, n int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.index(subscriptionID, feature)
	if i < 0 {
		return false, nil
	}
	c := &r.s.counters[subscriptionID][i]
	if c.IsUnlimited {
		return true, nil
	}
	if c.Remaining < n {
		return false, nil
	}
	c.Remaining -= n
	return true, nil
}

func (r entitlementRepo) Refund(subscriptionID uint, feature string, n int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.index(subscriptionID, feature); i >= 0 && !r.s.counters[subscriptionID][i].IsUnlimited {
		r.s.counters[subscriptionID][i].Remaining += n
	}
	return nil
}

// increment must be called with the store locked.
func (s *Store) increment(subscriptionID uint, deltas map[string]int) error {
	if s.counterErr != nil {
		return s.counterErr
	}
	for feature, n := range deltas {
		i := entitlementRepo{s}.index(subscriptionID, feature)
		if i < 0 {
			c := models.EntitlementCounter{SubscriptionID: subscriptionID, Feature: feature, Remaining: n, Allowance: n}
			s.seq(&c.ID)
			s.counters[subscriptionID] = append(s.counters[subscriptionID], c)
			continue
		}
		c := &s.counters[subscriptionID][i]
		if c.IsUnlimited {
			continue
		}
		c.Remaining += n
		c.Allowance += n
	}
	return nil
}

func (r entitlementRepo) ReplaceAll(subscriptionID uint, counters []models.EntitlementCounter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := make([]models.EntitlementCounter, len(counters))
	for i, c := range counters {
		c.ID = 0
		r.s.seq(&c.ID)
		c.SubscriptionID = subscriptionID
		rows[i] = c
	}
	r.s.counters[subscriptionID] = rows
	return nil
}

type addOnRepo struct{ s *Store }

func (r addOnRepo) Create(a *models.SubscriptionAddOn) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.addOns {
		if existing.OrderID == a.OrderID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.s.seq(&a.ID)
	stored := *a
	r.s.addOns[a.ID] = &stored
	return nil
}

func (r addOnRepo) GetByOrderID(orderID string) (*models.SubscriptionAddOn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.addOns {
		if a.OrderID == orderID {
			out := *a
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r addOnRepo) ApplyPaid(addOn *models.SubscriptionAddOn, paymentID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.addOns[addOn.ID]
	if !ok || a.IsPaid {
		return false, nil
	}
	if err := r.s.increment(addOn.SubscriptionID, addOn.Deltas.Data()); err != nil {
		return false, err
	}
	a.IsPaid = true
	a.PaymentID = paymentID
	paidAt := at
	a.PaidAt = &paidAt
	return true, nil
}

type webhookEventRepo struct{ s *Store }

func (r webhookEventRepo) CreateIfNotExists(e *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.events {
		if existing.Provider == e.Provider && existing.ProviderEventID == e.ProviderEventID {
			out := *existing
			return false, &out, nil
		}
	}
	r.s.seq(&e.ID)
	stored := *e
	r.s.events[e.ID] = &stored
	out := stored
	return true, &out, nil
}

func (r webhookEventRepo) MarkProcessed(id uint, outcome, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := r.s.clock()
	e.ProcessedAt = &now
	e.Outcome = outcome
	e.ProcessingError = processingError
	return nil
}
