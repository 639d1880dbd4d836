package posting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"jobboard/internal/database"
)

// 搜索排序方式。
const (
	SortLatest     = "latest"
	SortSalaryDesc = "salary_desc"
	SortSalaryAsc  = "salary_asc"
)

// SearchParams 描述岗位搜索条件。零值字段表示不过滤。
type SearchParams struct {
	Keyword          string
	Location         string
	JobCategory      string
	EmploymentType   string
	AlwaysRecruiting *bool
	Sort             string
	Skip             int
	Limit            int
}

// Repository 封装岗位查询，复杂的连接与聚合都收敛在这里。
type Repository struct {
	db *gorm.DB
}

// NewRepository 构造岗位仓储。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func normalizeWindow(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return skip, limit
}

// List 按创建时间倒序分页列出岗位。
func (r *Repository) List(ctx context.Context, skip, limit int) ([]database.JobPosting, int64, error) {
	skip, limit = normalizeWindow(skip, limit)

	var total int64
	if err := r.db.WithContext(ctx).Model(&database.JobPosting{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count postings: %w", err)
	}

	var postings []database.JobPosting
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&postings).Error; err != nil {
		return nil, 0, fmt.Errorf("list postings: %w", err)
	}
	return postings, total, nil
}

// Search 按条件搜索岗位并返回命中总数。
func (r *Repository) Search(ctx context.Context, params SearchParams) ([]database.JobPosting, int64, error) {
	skip, limit := normalizeWindow(params.Skip, params.Limit)

	query := r.db.WithContext(ctx).Model(&database.JobPosting{})

	if keyword := strings.TrimSpace(params.Keyword); keyword != "" {
		pattern := "%" + strings.ToLower(keyword) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(work_place_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	if location := strings.TrimSpace(params.Location); location != "" {
		query = query.Where("LOWER(work_address) LIKE ?", "%"+strings.ToLower(location)+"%")
	}
	if params.JobCategory != "" {
		query = query.Where("job_category = ?", params.JobCategory)
	}
	if params.EmploymentType != "" {
		query = query.Where("employment_type = ?", params.EmploymentType)
	}
	if params.AlwaysRecruiting != nil {
		query = query.Where("is_always_recruiting = ?", *params.AlwaysRecruiting)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	switch params.Sort {
	case SortSalaryDesc:
		query = query.Order("salary DESC, created_at DESC")
	case SortSalaryAsc:
		query = query.Order("salary ASC, created_at DESC")
	default:
		query = query.Order("created_at DESC")
	}

	var postings []database.JobPosting
	if err := query.Offset(skip).Limit(limit).Find(&postings).Error; err != nil {
		return nil, 0, fmt.Errorf("search postings: %w", err)
	}
	return postings, total, nil
}

// Popular 按投递数倒序返回岗位，投递数相同时按创建时间倒序。
func (r *Repository) Popular(ctx context.Context, limit int) ([]database.JobPosting, error) {
	_, limit = normalizeWindow(0, limit)

	var postings []database.JobPosting
	err := r.db.WithContext(ctx).
		Model(&database.JobPosting{}).
		Select("job_postings.*, COUNT(job_applications.id) AS application_count").
		Joins("LEFT JOIN job_applications ON job_applications.job_posting_id = job_postings.id AND job_applications.deleted_at IS NULL").
		Group("job_postings.id").
		Order("application_count DESC, job_postings.created_at DESC").
		Limit(limit).
		Find(&postings).Error
	if err != nil {
		return nil, fmt.Errorf("query popular postings: %w", err)
	}
	return postings, nil
}

// ageDecadeBounds 根据出生日期（YYYY-MM-DD）计算同年龄段（十年）的出生日期范围。
// 返回的上下界同样是 YYYY-MM-DD 字符串，可按字典序比较。
func ageDecadeBounds(birthday string, now time.Time) (low, high string, err error) {
	born, err := time.Parse("2006-01-02", birthday)
	if err != nil {
		return "", "", fmt.Errorf("parse birthday %q: %w", birthday, err)
	}

	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	decade := (age / 10) * 10

	// 年龄在 [decade, decade+10) 的人出生于 (now-(decade+10)年, now-decade年]。
	low = now.AddDate(-(decade + 10), 0, 0).Format("2006-01-02")
	high = now.AddDate(-decade, 0, 0).Format("2006-01-02")
	return low, high, nil
}

// PopularByAgeGroup 仅统计与给定出生日期同年龄段的投递者，再按投递数排序。
func (r *Repository) PopularByAgeGroup(ctx context.Context, birthday string, limit int) ([]database.JobPosting, error) {
	_, limit = normalizeWindow(0, limit)

	low, high, err := ageDecadeBounds(birthday, time.Now())
	if err != nil {
		return nil, err
	}

	var postings []database.JobPosting
	err = r.db.WithContext(ctx).
		Model(&database.JobPosting{}).
		Select("job_postings.*, COUNT(job_applications.id) AS application_count").
		Joins("JOIN job_applications ON job_applications.job_posting_id = job_postings.id AND job_applications.deleted_at IS NULL").
		Joins("JOIN users ON users.id = job_applications.user_id AND users.deleted_at IS NULL AND users.birthday > ? AND users.birthday <= ?", low, high).
		Group("job_postings.id").
		Order("application_count DESC, job_postings.created_at DESC").
		Limit(limit).
		Find(&postings).Error
	if err != nil {
		return nil, fmt.Errorf("query popular postings by age group: %w", err)
	}
	return postings, nil
}

// FavoritedPostingIDs 批量查询用户收藏了哪些岗位，单次 IN 查询。
func (r *Repository) FavoritedPostingIDs(ctx context.Context, userID uint, postingIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(postingIDs))
	if len(postingIDs) == 0 {
		return result, nil
	}

	var favoritedIDs []uint
	err := r.db.WithContext(ctx).
		Model(&database.Favorite{}).
		Where("user_id = ? AND job_posting_id IN ?", userID, postingIDs).
		Pluck("job_posting_id", &favoritedIDs).Error
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}

	for _, id := range favoritedIDs {
		result[id] = true
	}
	return result, nil
}

// RecommendedByInterests 返回岗位类别命中用户兴趣名称的岗位。
func (r *Repository) RecommendedByInterests(ctx context.Context, userID uint) ([]database.JobPosting, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&database.UserInterest{}).
		Joins("JOIN interests ON interests.id = user_interests.interest_id AND interests.deleted_at IS NULL").
		Where("user_interests.user_id = ?", userID).
		Pluck("interests.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("query user interests: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	var postings []database.JobPosting
	err = r.db.WithContext(ctx).
		Where("job_category IN ?", names).
		Order("created_at DESC").
		Find(&postings).Error
	if err != nil {
		return nil, fmt.Errorf("query recommended postings: %w", err)
	}
	return postings, nil
}
