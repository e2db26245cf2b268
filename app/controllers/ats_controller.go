package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

// ATSController serves the applicant-tracking integration API. Callers are
// authenticated by their API key triple.
type ATSController struct {
	svc *ats.Service
}

func NewATSController(svc *ats.Service) *ATSController {
	return &ATSController{svc: svc}
}

type postJobsRequest struct {
	Jobs      []ats.JobInput `json:"jobs" validate:"required,min=1,max=50,dive"`
	Translate bool           `json:"translate"`
}

type candidateQuery struct {
	Skip     int      `query:"skip" validate:"gte=0"`
	Limit    int      `query:"limit" validate:"gte=0,lte=50"`
	Lat      *float64 `query:"lat" validate:"omitempty,latitude"`
	Lng      *float64 `query:"lng" validate:"omitempty,longitude"`
	RadiusKm float64  `query:"radiusKm" validate:"gte=0,lte=1000"`
	Keyword  string   `query:"keyword" validate:"max=100"`
	Gender   string   `query:"gender" validate:"max=20"`
	Skills   string   `query:"skills" validate:"max=500"`
	MinYears int      `query:"minYears" validate:"gte=0,lte=60"`
	HasVideo bool     `query:"hasVideo"`
	HasAudio bool     `query:"hasAudio"`
	HasPhoto bool     `query:"hasPhoto"`
}

func (q candidateQuery) filter() repository.CandidateFilter {
	f := repository.CandidateFilter{
		Keyword:   q.Keyword,
		Gender:    q.Gender,
		MinYears:  q.MinYears,
		HasVideo:  q.HasVideo,
		HasAudio:  q.HasAudio,
		HasPhoto:  q.HasPhoto,
		Latitude:  q.Lat,
		Longitude: q.Lng,
		RadiusKm:  q.RadiusKm,
		Skip:      q.Skip,
		Limit:     q.Limit,
	}
	for _, s := range strings.Split(q.Skills, ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Skills = append(f.Skills, s)
		}
	}
	return f
}

// HandlePostJobs creates or updates jobs, consuming one job posting per new job
func (ac *ATSController) HandlePostJobs(c *fiber.Ctx) error {
	var req postJobsRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	if c.QueryBool("translate") {
		req.Translate = true
	}
	res, err := ac.svc.PostJobs(c.UserContext(), usercontext.GetAccountID(c), req.Jobs, req.Translate)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, res, "Jobs saved")
}

func (ac *ATSController) HandleUpdateJob(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	var in ats.JobInput
	if err := bindJSON(c, &in); err != nil {
		return response.Error(c, err)
	}
	job, err := ac.svc.UpdateJob(c.UserContext(), usercontext.GetAccountID(c), id, in)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, job, "Job updated")
}

func (ac *ATSController) HandleCloseJob(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	job, err := ac.svc.CloseJob(c.UserContext(), usercontext.GetAccountID(c), id)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, job, "Job closed")
}

func (ac *ATSController) HandleListJobs(c *fiber.Ctx) error {
	var q pageQuery
	if err := bindQuery(c, &q); err != nil {
		return response.Error(c, err)
	}
	jobs, total, err := ac.svc.ListJobs(c.UserContext(), usercontext.GetAccountID(c), q.Skip, q.Limit)
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, jobs, total, "Jobs")
}

// HandleSearchCandidates searches candidates in the caller's country
func (ac *ATSController) HandleSearchCandidates(c *fiber.Ctx) error {
	var q candidateQuery
	if err := bindQuery(c, &q); err != nil {
		return response.Error(c, err)
	}
	candidates, total, err := ac.svc.SearchCandidates(c.UserContext(), usercontext.GetAccountID(c), q.filter())
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, candidates, total, "Candidates")
}

func (ac *ATSController) HandleViewResume(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	resume, err := ac.svc.ViewResume(c.UserContext(), usercontext.GetAccountID(c), id)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, resume, "Resume")
}

func (ac *ATSController) HandleSubscription(c *fiber.Ctx) error {
	cur, err := ac.svc.Subscription(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, cur, "Subscription")
}
