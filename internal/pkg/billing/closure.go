package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/internal/pkg/apperr"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
)

type ClosureResult struct {
	JobIDs        []uint
	Conversations int
	SavedRemoved  int64
	Notified      int
}

// closeJobs archives the visible jobs of the owners and releases them.
func (s *Service) closeJobs(ctx context.Context, ownerIDs []uint, now time.Time) (ClosureResult, error) {
	jobIDs, err := s.repos.Job.ArchiveVisibleByOwners(ownerIDs, now)
	if err != nil {
		return ClosureResult{}, apperr.Internal(err, "close jobs: archive jobs")
	}
	if len(jobIDs) == 0 {
		return ClosureResult{}, nil
	}
	s.metrics.RecordJobsClosed(len(jobIDs))

	res, err := s.ReleaseJobs(ctx, jobIDs)
	log.Infof("[Billing] Closed %d jobs of accounts %v (%d conversations, %d saved entries)",
		len(jobIDs), ownerIDs, res.Conversations, res.SavedRemoved)
	return res, err
}

// ReleaseJobs closes the open conversations of already archived jobs,
// drops them from saved lists and tells each candidate the position was
// filled. Every step runs even if an earlier one failed.
func (s *Service) ReleaseJobs(ctx context.Context, jobIDs []uint) (ClosureResult, error) {
	res := ClosureResult{JobIDs: jobIDs}
	if len(jobIDs) == 0 {
		return res, nil
	}

	var errs []error
	conversations, err := s.repos.Conversation.CloseOpenForJobs(jobIDs, s.now())
	if err != nil {
		errs = append(errs, apperr.Internal(err, "close jobs: close conversations"))
	}
	res.Conversations = len(conversations)

	removed, err := s.repos.SavedJob.DeleteByJobs(jobIDs)
	if err != nil {
		errs = append(errs, apperr.Internal(err, "close jobs: remove saved jobs"))
	}
	res.SavedRemoved = removed

	res.Notified = s.notifyPositionFilled(ctx, conversations)
	return res, errors.Join(errs...)
}

func (s *Service) notifyPositionFilled(ctx context.Context, conversations []models.Conversation) int {
	if len(conversations) == 0 {
		return 0
	}

	byJob := make(map[uint][]uint)
	var order []uint
	for _, c := range conversations {
		if _, ok := byJob[c.JobID]; !ok {
			order = append(order, c.JobID)
		}
		if !containsID(byJob[c.JobID], c.CandidateID) {
			byJob[c.JobID] = append(byJob[c.JobID], c.CandidateID)
		}
	}

	var notifications []models.Notification
	for _, jobID := range order {
		title := "the position"
		if job, err := s.repos.Job.GetByID(jobID); err == nil {
			title = fmt.Sprintf("%q", job.Title)
		}
		content := fmt.Sprintf("The employer has filled %s.", title)
		candidates := byJob[jobID]
		for _, candidateID := range candidates {
			notifications = append(notifications, models.Notification{
				AccountID:   candidateID,
				Type:        models.NOTIFICATION_POSITION_FILLED,
				Content:     content,
				ReferenceID: jobID,
			})
		}
		if s.notifier != nil {
			err := s.notifier.SendPush(ctx, notify.Push{
				AccountIDs: candidates,
				Title:      "Position filled",
				Body:       content,
				Data: map[string]string{
					"type":  models.NOTIFICATION_POSITION_FILLED,
					"jobId": strconv.FormatUint(uint64(jobID), 10),
				},
			})
			if err != nil {
				log.Errorf("[Billing] push position filled for job %d: %v", jobID, err)
			}
		}
	}
	s.inApp(ctx, notifications...)
	return len(notifications)
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
