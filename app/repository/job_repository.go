package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/talentbridge/jobboard/app/models"
)

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(job *models.Job) error {
	return r.db.Create(job).Error
}

func (r *jobRepository) GetByID(id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByExternalRef finds a job by the identifier the employer's ATS uses for it
func (r *jobRepository) GetByExternalRef(ownerID uint, ref string) (*models.Job, error) {
	var job models.Job
	err := r.db.Where("owner_id = ? AND external_ref = ?", ownerID, ref).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) UpdateFields(id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Job{}).Where("id = ?", id).Updates(fields).Error
}

// ListByOwner returns the owner's jobs, newest first, and the total count
func (r *jobRepository) ListByOwner(ownerID uint, offset, limit int) ([]models.Job, int64, error) {
	var total int64
	query := r.db.Model(&models.Job{}).Where("owner_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.Job
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error
	return jobs, total, err
}

func (r *jobRepository) CountVisibleByOwners(ownerIDs []uint) (int64, error) {
	var count int64
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	err := r.db.Model(&models.Job{}).
		Where("owner_id IN ? AND is_visible = ? AND is_archived = ?", ownerIDs, true, false).
		Count(&count).Error
	return count, err
}

// ArchiveVisibleByOwners hides and closes every visible job of the owners
// and returns the ids it touched.
func (r *jobRepository) ArchiveVisibleByOwners(ownerIDs []uint, at time.Time) ([]uint, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.Model(&models.Job{}).
		Where("owner_id IN ? AND is_visible = ? AND is_archived = ?", ownerIDs, true, false).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	err = r.db.Model(&models.Job{}).Where("id IN ?", ids).Updates(map[string]any{
		"is_visible":  false,
		"is_archived": true,
		"is_closed":   true,
		"positions":   0,
		"closed_at":   at,
	}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
