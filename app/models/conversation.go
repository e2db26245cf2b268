package models

import "time"

const (
	CONVERSATION_OPEN     = "open"
	CONVERSATION_HIRED    = "hired"
	CONVERSATION_REJECTED = "rejected"
	CONVERSATION_CLOSED   = "closed"
)

type Conversation struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	JobID       uint       `gorm:"not null;index" json:"jobId"`
	EmployerID  uint       `gorm:"not null;index" json:"employerId"`
	CandidateID uint       `gorm:"not null;index" json:"candidateId"`
	Status      string     `gorm:"type:varchar(20);default:'open';index" json:"status"`
	IsArchived  bool       `gorm:"default:false" json:"isArchived"`
	IsRejected  bool       `gorm:"default:false" json:"isRejected"`
	IsHired     bool       `gorm:"default:false" json:"isHired"`
	ClosedAt    *time.Time `gorm:"type:timestamp;default:null" json:"closedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// SavedJob is a candidate's bookmark on a job.
type SavedJob struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index:ux_saved_jobs_account_job,unique,priority:1" json:"accountId"`
	JobID     uint      `gorm:"not null;index:ux_saved_jobs_account_job,unique,priority:2;index" json:"jobId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
