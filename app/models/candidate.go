package models

import (
	"time"

	"gorm.io/datatypes"
)

type CandidateProfile struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	AccountID       uint                        `gorm:"not null;uniqueIndex" json:"accountId"`
	DisplayName     string                      `gorm:"type:varchar(150)" json:"displayName"`
	Title           string                      `gorm:"type:varchar(200)" json:"title"`
	Summary         string                      `gorm:"type:text" json:"summary,omitempty"`
	Skills          datatypes.JSONSlice[string] `gorm:"type:json" json:"skills"`
	Gender          string                      `gorm:"type:varchar(20);index" json:"gender,omitempty"`
	Country         string                      `gorm:"type:varchar(100);index" json:"country"`
	City            string                      `gorm:"type:varchar(100)" json:"city,omitempty"`
	Latitude        float64                     `json:"latitude"`
	Longitude       float64                     `json:"longitude"`
	ExperienceYears int                         `json:"experienceYears"`
	VideoURL        string                      `gorm:"type:varchar(500)" json:"videoUrl,omitempty"`
	AudioURL        string                      `gorm:"type:varchar(500)" json:"audioUrl,omitempty"`
	PhotoURL        string                      `gorm:"type:varchar(500)" json:"photoUrl,omitempty"`
	ResumeURL       string                      `gorm:"type:varchar(500)" json:"-"`
	ResumeText      string                      `gorm:"type:longtext" json:"-"`
	IsVisible       bool                        `gorm:"default:true;index" json:"isVisible"`
	CreatedAt       time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ResumeView records that an employer unlocked a candidate's resume. The
// unique pair is what makes a second view free.
type ResumeView struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	EmployerID     uint      `gorm:"not null;index:ux_resume_views_pair,unique,priority:1" json:"employerId"`
	CandidateID    uint      `gorm:"not null;index:ux_resume_views_pair,unique,priority:2;index" json:"candidateId"`
	SubscriptionID uint      `gorm:"index" json:"subscriptionId"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
