package models

import (
	"time"

	"gorm.io/datatypes"
)

type Job struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	OwnerID        uint                        `gorm:"not null;index;index:ux_jobs_owner_external_ref,unique,priority:1" json:"ownerId"`
	ExternalRef    *string                     `gorm:"type:varchar(191);index:ux_jobs_owner_external_ref,unique,priority:2" json:"externalRef,omitempty"`
	Title          string                      `gorm:"type:varchar(200);not null" json:"title"`
	Description    string                      `gorm:"type:text" json:"description"`
	Skills         datatypes.JSONSlice[string] `gorm:"type:json" json:"skills"`
	EmploymentType string                      `gorm:"type:varchar(30)" json:"employmentType,omitempty"`
	SalaryMin      int64                       `json:"salaryMin,omitempty"`
	SalaryMax      int64                       `json:"salaryMax,omitempty"`
	Country        string                      `gorm:"type:varchar(100);index" json:"country"`
	City           string                      `gorm:"type:varchar(100)" json:"city,omitempty"`
	Latitude       float64                     `json:"latitude"`
	Longitude      float64                     `json:"longitude"`
	Positions      int                         `gorm:"default:1" json:"positions"`
	IsVisible      bool                        `gorm:"default:true;index" json:"isVisible"`
	IsArchived     bool                        `gorm:"default:false;index" json:"isArchived"`
	IsClosed       bool                        `gorm:"default:false" json:"isClosed"`
	IsTranslated   bool                        `gorm:"default:false" json:"isTranslated"`
	ClosedAt       *time.Time                  `gorm:"type:timestamp;default:null" json:"closedAt,omitempty"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsOpen reports whether candidates can still see and apply to the job.
func (j *Job) IsOpen() bool {
	return j.IsVisible && !j.IsArchived && !j.IsClosed
}
