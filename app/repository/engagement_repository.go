package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentbridge/jobboard/app/models"
)

type resumeViewRepository struct {
	db *gorm.DB
}

func NewResumeViewRepository(db *gorm.DB) ResumeViewRepository {
	return &resumeViewRepository{db: db}
}

// CreateIfNotExists records the view and reports whether it is new. An
// existing (employer, candidate) pair is loaded into view.
func (r *resumeViewRepository) CreateIfNotExists(view *models.ResumeView) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employer_id"}, {Name: "candidate_id"}},
		DoNothing: true,
	}).Create(view)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}
	var stored models.ResumeView
	err := r.db.Where("employer_id = ? AND candidate_id = ?", view.EmployerID, view.CandidateID).First(&stored).Error
	if err != nil {
		return false, err
	}
	*view = stored
	return false, nil
}

func (r *resumeViewRepository) Delete(id uint) error {
	return r.db.Delete(&models.ResumeView{}, id).Error
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// CloseOpenForJobs archives every conversation on the jobs that did not end
// in a hire and returns them as they were before closing.
func (r *conversationRepository) CloseOpenForJobs(jobIDs []uint, at time.Time) ([]models.Conversation, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	var open []models.Conversation
	err := r.db.Where("job_id IN ? AND status = ? AND is_hired = ?", jobIDs, models.CONVERSATION_OPEN, false).
		Find(&open).Error
	if err != nil || len(open) == 0 {
		return nil, err
	}

	ids := make([]uint, 0, len(open))
	for _, c := range open {
		ids = append(ids, c.ID)
	}
	err = r.db.Model(&models.Conversation{}).Where("id IN ?", ids).Updates(map[string]any{
		"status":      models.CONVERSATION_CLOSED,
		"is_archived": true,
		"is_rejected": true,
		"closed_at":   at,
	}).Error
	if err != nil {
		return nil, err
	}
	return open, nil
}

type savedJobRepository struct {
	db *gorm.DB
}

func NewSavedJobRepository(db *gorm.DB) SavedJobRepository {
	return &savedJobRepository{db: db}
}

func (r *savedJobRepository) DeleteByJobs(jobIDs []uint) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	tx := r.db.Where("job_id IN ?", jobIDs).Delete(&models.SavedJob{})
	return tx.RowsAffected, tx.Error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateBatch(notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.CreateInBatches(notifications, 100).Error
}
