package ats

import (
	"strings"

	"gorm.io/datatypes"

	"github.com/talentbridge/jobboard/app/models"
)

// JobInput is one job as sent by an ATS.
type JobInput struct {
	ExternalRef    string   `json:"externalRef" validate:"omitempty,max=191"`
	Title          string   `json:"title" validate:"required,max=200"`
	Description    string   `json:"description" validate:"required"`
	Skills         []string `json:"skills" validate:"omitempty,max=50,dive,max=100"`
	EmploymentType string   `json:"employmentType" validate:"omitempty,max=30"`
	SalaryMin      int64    `json:"salaryMin" validate:"gte=0"`
	SalaryMax      int64    `json:"salaryMax" validate:"omitempty,gtefield=SalaryMin"`
	Country        string   `json:"country" validate:"omitempty,max=100"`
	City           string   `json:"city" validate:"omitempty,max=100"`
	Latitude       *float64 `json:"latitude" validate:"required,latitude"`
	Longitude      *float64 `json:"longitude" validate:"required,longitude"`
	Positions      int      `json:"positions" validate:"omitempty,min=1"`
}

func (in JobInput) toJob(owner *models.Account) *models.Job {
	job := &models.Job{
		OwnerID:        owner.ID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Skills:         datatypes.JSONSlice[string](in.Skills),
		EmploymentType: in.EmploymentType,
		SalaryMin:      in.SalaryMin,
		SalaryMax:      in.SalaryMax,
		Country:        strings.TrimSpace(in.Country),
		City:           strings.TrimSpace(in.City),
		Positions:      in.Positions,
		IsVisible:      true,
	}
	if ref := strings.TrimSpace(in.ExternalRef); ref != "" {
		job.ExternalRef = &ref
	}
	if job.Country == "" {
		job.Country = owner.Country
	}
	if job.Positions <= 0 {
		job.Positions = 1
	}
	if in.Latitude != nil {
		job.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		job.Longitude = *in.Longitude
	}
	return job
}

func (in JobInput) fields() map[string]any {
	fields := map[string]any{
		"title":           strings.TrimSpace(in.Title),
		"description":     in.Description,
		"skills":          datatypes.JSONSlice[string](in.Skills),
		"employment_type": in.EmploymentType,
		"salary_min":      in.SalaryMin,
		"salary_max":      in.SalaryMax,
		"city":            strings.TrimSpace(in.City),
	}
	if c := strings.TrimSpace(in.Country); c != "" {
		fields["country"] = c
	}
	if in.Positions > 0 {
		fields["positions"] = in.Positions
	}
	if in.Latitude != nil {
		fields["latitude"] = *in.Latitude
	}
	if in.Longitude != nil {
		fields["longitude"] = *in.Longitude
	}
	return fields
}

type PostedJob struct {
	Job     *models.Job `json:"job"`
	Created bool        `json:"created"`
}

type PostJobsResult struct {
	Jobs     []PostedJob `json:"jobs"`
	Consumed int         `json:"consumed"`
}

// Resume is an unlocked candidate profile.
type Resume struct {
	Candidate     *models.CandidateProfile `json:"candidate"`
	ResumeURL     string                   `json:"resumeUrl,omitempty"`
	ResumeText    string                   `json:"resumeText,omitempty"`
	AlreadyViewed bool                     `json:"alreadyViewed"`
}
