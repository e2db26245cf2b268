// Package paadmin backs the placement-agency console: a master account
// manages the slave accounts that share its subscription.
package paadmin

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
)

const (
	DefaultSlaveLimit = 20
	MaxSlaveLimit     = 100
)

// TokenIssuer signs bearer tokens for logged-in accounts.
type TokenIssuer interface {
	Issue(accountID uint, role string) (string, time.Time, error)
}

// CRMSync schedules a CRM refresh of an account.
type CRMSync interface {
	Enqueue(ctx context.Context, accountID uint, reason string) error
}

type Service struct {
	repos  *repository.Repositories
	tokens TokenIssuer
	crm    CRMSync
	now    func() time.Time
}

func NewService(repos *repository.Repositories, tokens TokenIssuer, crm CRMSync) *Service {
	return &Service{repos: repos, tokens: tokens, crm: crm, now: time.Now}
}

// Login checks the password and issues a token. When roles is not empty
// the account must hold one of them.
func (s *Service) Login(ctx context.Context, email, password string, roles ...string) (*Session, error) {
	account, err := s.repos.Account.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, apperr.Internal(err, "login: load account")
	}
	if !account.CheckPassword(password) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if len(roles) > 0 && !hasRole(account.Role, roles) {
		return nil, apperr.Forbidden("this account cannot use the console")
	}
	if !account.IsActive() {
		return nil, apperr.Forbidden("account is not active")
	}

	token, expires, err := s.tokens.Issue(account.ID, account.Role)
	if err != nil {
		return nil, apperr.Internal(err, "login: issue token")
	}
	if err := s.repos.Account.UpdateFields(account.ID, map[string]any{"last_login_at": s.now()}); err != nil {
		log.Warnf("[PAAdmin] login: record last login of %d: %v", account.ID, err)
	}
	return &Session{Token: token, ExpiresAt: expires, Account: account}, nil
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Service) master(masterID uint, op string) (*models.Account, error) {
	master, err := s.repos.Account.GetByID(masterID)
	if err != nil {
		return nil, apperr.Lookup(err, "account not found", op)
	}
	if !master.IsPAMaster() {
		return nil, apperr.Forbidden("only agency masters can manage users")
	}
	return master, nil
}

// slave loads an account and checks that it belongs to the master.
func (s *Service) slave(masterID, slaveID uint, op string) (*models.Account, error) {
	slave, err := s.repos.Account.GetByID(slaveID)
	if err != nil {
		return nil, apperr.Lookup(err, "user not found", op)
	}
	if slave.MasterID == nil || *slave.MasterID != masterID {
		return nil, apperr.Unauthorized("user does not belong to this agency")
	}
	return slave, nil
}

func (s *Service) ListSlaves(ctx context.Context, masterID uint, skip, limit int) ([]models.Account, int64, error) {
	if _, err := s.master(masterID, "list users: load master"); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = DefaultSlaveLimit
	}
	if limit > MaxSlaveLimit {
		limit = MaxSlaveLimit
	}
	if skip < 0 {
		skip = 0
	}
	slaves, total, err := s.repos.Account.ListSlaves(masterID, skip, limit)
	if err != nil {
		return nil, 0, apperr.Internal(err, "list users")
	}
	return slaves, total, nil
}

// CreateSlave adds a user under the master. The user inherits the
// master's country, agency type and current subscription.
func (s *Service) CreateSlave(ctx context.Context, masterID uint, in SlaveInput) (*models.Account, error) {
	master, err := s.master(masterID, "create user: load master")
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperr.Invalid("password is required")
	}

	slave := &models.Account{
		Name:                  strings.TrimSpace(in.Name),
		Email:                 strings.ToLower(strings.TrimSpace(in.Email)),
		Role:                  models.ROLE_PA_SLAVE,
		Status:                models.STATUS_ACTIVE,
		Phone:                 in.Phone,
		Company:               master.Company,
		Country:               master.Country,
		City:                  in.City,
		MasterID:              &master.ID,
		AgencyType:            master.AgencyType,
		CurrentSubscriptionID: master.CurrentSubscriptionID,
	}
	if err := slave.SetPassword(in.Password); err != nil {
		return nil, apperr.Internal(err, "create user: hash password")
	}
	if err := slave.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	if err := s.repos.Account.Create(slave); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Invalid("email %s is already registered", slave.Email)
		}
		log.Errorf("[PAAdmin] create user under %d: %v", master.ID, err)
		return nil, apperr.Internal(err, "create user")
	}

	log.Infof("[PAAdmin] Master %d created user %d", master.ID, slave.ID)
	s.syncCRM(ctx, slave.ID, "agency_user_created")
	return slave, nil
}

func (s *Service) UpdateSlave(ctx context.Context, masterID, slaveID uint, in SlaveUpdate) (*models.Account, error) {
	if _, err := s.master(masterID, "update user: load master"); err != nil {
		return nil, err
	}
	slave, err := s.slave(masterID, slaveID, "update user: load user")
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.Name != nil {
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		fields["phone"] = *in.Phone
	}
	if in.City != nil {
		fields["city"] = *in.City
	}
	if in.Password != nil {
		hashed, err := models.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Internal(err, "update user: hash password")
		}
		fields["password"] = hashed
	}
	if len(fields) == 0 {
		return slave, nil
	}
	if err := s.repos.Account.UpdateFields(slave.ID, fields); err != nil {
		return nil, apperr.Internal(err, "update user")
	}
	return s.reload(slave.ID, "update user: reload")
}

func (s *Service) SetSlaveStatus(ctx context.Context, masterID, slaveID uint, status string) (*models.Account, error) {
	switch status {
	case models.STATUS_ACTIVE, models.STATUS_INACTIVE, models.STATUS_DISABLED:
	default:
		return nil, apperr.Invalid("unknown status %q", status)
	}
	if _, err := s.master(masterID, "set user status: load master"); err != nil {
		return nil, err
	}
	slave, err := s.slave(masterID, slaveID, "set user status: load user")
	if err != nil {
		return nil, err
	}
	if slave.Status == status {
		return slave, nil
	}
	if err := s.repos.Account.UpdateFields(slave.ID, map[string]any{"status": status}); err != nil {
		return nil, apperr.Internal(err, "set user status")
	}
	log.Infof("[PAAdmin] Master %d set user %d to %s", masterID, slave.ID, status)
	return s.reload(slave.ID, "set user status: reload")
}

func (s *Service) DeleteSlave(ctx context.Context, masterID, slaveID uint) error {
	if _, err := s.master(masterID, "delete user: load master"); err != nil {
		return err
	}
	slave, err := s.slave(masterID, slaveID, "delete user: load user")
	if err != nil {
		return err
	}
	if err := s.repos.Account.Delete(slave.ID); err != nil {
		return apperr.Internal(err, "delete user")
	}
	log.Infof("[PAAdmin] Master %d deleted user %d", masterID, slave.ID)
	return nil
}

// Dashboard counts the agency's users and the visible jobs posted by the
// master and every slave.
func (s *Service) Dashboard(ctx context.Context, masterID uint) (*Dashboard, error) {
	master, err := s.master(masterID, "dashboard: load master")
	if err != nil {
		return nil, err
	}
	total, active, err := s.repos.Account.CountSlaves(master.ID)
	if err != nil {
		return nil, apperr.Internal(err, "dashboard: count users")
	}
	ids, err := s.repos.Account.SlaveIDs(master.ID)
	if err != nil {
		return nil, apperr.Internal(err, "dashboard: list user ids")
	}
	jobs, err := s.repos.Job.CountVisibleByOwners(append([]uint{master.ID}, ids...))
	if err != nil {
		return nil, apperr.Internal(err, "dashboard: count jobs")
	}

	d := &Dashboard{TotalUsers: total, ActiveUsers: active, VisibleJobs: jobs}
	if sub, err := s.repos.Subscription.FindLive(master.ID); err != nil {
		log.Warnf("[PAAdmin] dashboard: load subscription of %d: %v", master.ID, err)
	} else if sub != nil {
		d.SubscriptionID = &sub.ID
		d.SubscriptionState = sub.State()
		d.ExpiresAt = sub.ExpiryDate
	}
	return d, nil
}

func (s *Service) reload(id uint, op string) (*models.Account, error) {
	account, err := s.repos.Account.GetByID(id)
	if err != nil {
		return nil, apperr.Lookup(err, "user not found", op)
	}
	return account, nil
}

func (s *Service) syncCRM(ctx context.Context, accountID uint, reason string) {
	if s.crm == nil {
		return
	}
	if err := s.crm.Enqueue(ctx, accountID, reason); err != nil {
		log.Warnf("[PAAdmin] crm sync of %d (%s): %v", accountID, reason, err)
	}
}
