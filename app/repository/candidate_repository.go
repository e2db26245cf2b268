package repository

import (
	"math"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentbridge/jobboard/app/models"
)

const (
	DefaultCandidateLimit = 10
	MaxCandidateLimit     = 50
	DefaultRadiusKm       = 50
	earthRadiusKm         = 6371.0
	kmPerDegreeLat        = 111.045
)

// CandidateFilter narrows a candidate search. Latitude and Longitude enable
// the radius filter and distance ordering.
type CandidateFilter struct {
	Country   string
	Keyword   string
	Gender    string
	Skills    []string
	MinYears  int
	HasVideo  bool
	HasAudio  bool
	HasPhoto  bool
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Skip      int
	Limit     int
}

// Normalize clamps paging and fills the default radius.
func (f CandidateFilter) Normalize() CandidateFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultCandidateLimit
	}
	if f.Limit > MaxCandidateLimit {
		f.Limit = MaxCandidateLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.hasGeo() && f.RadiusKm <= 0 {
		f.RadiusKm = DefaultRadiusKm
	}
	f.Country = strings.TrimSpace(f.Country)
	f.Keyword = strings.TrimSpace(f.Keyword)
	return f
}

func (f CandidateFilter) hasGeo() bool {
	return f.Latitude != nil && f.Longitude != nil
}

const distanceExpr = "(? * ACOS(LEAST(1, COS(RADIANS(?)) * COS(RADIANS(latitude)) * COS(RADIANS(longitude) - RADIANS(?)) + SIN(RADIANS(?)) * SIN(RADIANS(latitude)))))"

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// candidateConditions builds the WHERE fragments for f. A bounding box on
// the indexed coordinates pre-filters rows before the haversine check.
func candidateConditions(f CandidateFilter) ([]string, []any) {
	conds := []string{"is_visible = ?"}
	args := []any{true}

	if f.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, f.Country)
	}
	if f.Gender != "" {
		conds = append(conds, "gender = ?")
		args = append(args, f.Gender)
	}
	if f.Keyword != "" {
		like := "%" + escapeLike(f.Keyword) + "%"
		conds = append(conds, "(title LIKE ? OR summary LIKE ? OR CAST(skills AS CHAR) LIKE ?)")
		args = append(args, like, like, like)
	}
	for _, skill := range f.Skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		conds = append(conds, "JSON_CONTAINS(skills, JSON_QUOTE(?))")
		args = append(args, skill)
	}
	if f.MinYears > 0 {
		conds = append(conds, "experience_years >= ?")
		args = append(args, f.MinYears)
	}
	if f.HasVideo {
		conds = append(conds, "video_url <> ''")
	}
	if f.HasAudio {
		conds = append(conds, "audio_url <> ''")
	}
	if f.HasPhoto {
		conds = append(conds, "photo_url <> ''")
	}
	if f.hasGeo() {
		lat, lng := *f.Latitude, *f.Longitude
		dLat := f.RadiusKm / kmPerDegreeLat
		dLng := dLat
		if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
			dLng = dLat / c
		}
		conds = append(conds, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, lat-dLat, lat+dLat, lng-dLng, lng+dLng)
		conds = append(conds, distanceExpr+" <= ?")
		args = append(args, earthRadiusKm, lat, lng, lat, f.RadiusKm)
	}
	return conds, args
}

type candidateRepository struct {
	db *gorm.DB
}

func NewCandidateRepository(db *gorm.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

func (r *candidateRepository) GetByID(id uint) (*models.CandidateProfile, error) {
	var profile models.CandidateProfile
	err := r.db.Where("id = ? AND is_visible = ?", id, true).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func searchQuery(db *gorm.DB, f CandidateFilter) *gorm.DB {
	conds, args := candidateConditions(f)
	return db.Model(&models.CandidateProfile{}).Where(strings.Join(conds, " AND "), args...)
}

// Search returns one page of matching candidates and the total match count.
// Results are ordered by distance when coordinates are given, otherwise by
// most recently updated.
func (r *candidateRepository) Search(filter CandidateFilter) ([]models.CandidateProfile, int64, error) {
	f := filter.Normalize()

	var total int64
	if err := searchQuery(r.db, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.CandidateProfile{}, 0, nil
	}

	query := searchQuery(r.db, f)
	if f.hasGeo() {
		query = query.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                distanceExpr + " ASC",
			Vars:               []any{earthRadiusKm, *f.Latitude, *f.Longitude, *f.Latitude},
			WithoutParentheses: true,
		}})
	} else {
		query = query.Order("updated_at DESC")
	}

	var profiles []models.CandidateProfile
	err := query.Offset(f.Skip).Limit(f.Limit).Find(&profiles).Error
	return profiles, total, err
}
