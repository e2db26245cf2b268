package paadmin

import (
	"time"

	"github.com/talentbridge/jobboard/app/models"
)

type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   *models.Account `json:"account"`
}

type SlaveInput struct {
	Name     string `json:"name" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
	City     string `json:"city" validate:"omitempty,max=100"`
}

// SlaveUpdate changes only the fields that are set.
type SlaveUpdate struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=150"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	City     *string `json:"city" validate:"omitempty,max=100"`
}

type Dashboard struct {
	TotalUsers        int64      `json:"totalUsers"`
	ActiveUsers       int64      `json:"activeUsers"`
	VisibleJobs       int64      `json:"visibleJobs"`
	SubscriptionID    *uint      `json:"subscriptionId,omitempty"`
	SubscriptionState string     `json:"subscriptionState,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}
