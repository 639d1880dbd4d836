package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/database"
	"jobboard/internal/posting"
)

// PostingHandler 处理招聘岗位的发布、检索与维护。
type PostingHandler struct {
	db       *gorm.DB
	repo     *posting.Repository
	uploader *ImageUploader
	logger   *slog.Logger
}

// NewPostingHandler 构造岗位处理器。
func NewPostingHandler(db *gorm.DB, repo *posting.Repository, uploader *ImageUploader, logger *slog.Logger) *PostingHandler {
	return &PostingHandler{
		db:       db,
		repo:     repo,
		uploader: uploader,
		logger:   logger,
	}
}

type createPostingRequest struct {
	Title               string   `form:"title" binding:"required,max=50"`
	RecruitPeriodStart  string   `form:"recruit_period_start" binding:"omitempty,datetime=2006-01-02"`
	RecruitPeriodEnd    string   `form:"recruit_period_end" binding:"omitempty,datetime=2006-01-02"`
	IsAlwaysRecruiting  bool     `form:"is_always_recruiting"`
	Education           string   `form:"education" binding:"required,oneof=none high college_2 college_4 graduate"`
	RecruitNumber       int      `form:"recruit_number" binding:"min=0"`
	Benefits            string   `form:"benefits"`
	PreferredConditions string   `form:"preferred_conditions"`
	OtherConditions     string   `form:"other_conditions"`
	WorkAddress         string   `form:"work_address" binding:"required,max=255"`
	WorkPlaceName       string   `form:"work_place_name" binding:"required,max=64"`
	PaymentMethod       string   `form:"payment_method" binding:"required,oneof=hourly daily weekly monthly yearly"`
	JobCategory         string   `form:"job_category" binding:"required,max=64"`
	WorkDuration        string   `form:"work_duration" binding:"omitempty,oneof=more_3_months more_6_months more_1_year more_3_years negotiable"`
	Career              string   `form:"career" binding:"required,max=50"`
	EmploymentType      string   `form:"employment_type" binding:"required,max=50"`
	Salary              int      `form:"salary" binding:"min=0"`
	DeadlineAt          string   `form:"deadline_at" binding:"omitempty,datetime=2006-01-02"`
	WorkDays            string   `form:"work_days" binding:"omitempty,max=255"`
	Description         string   `form:"description" binding:"required"`
	Latitude            *float64 `form:"latitude"`
	Longitude           *float64 `form:"longitude"`
}

type postingResponse struct {
	ID                  uint       `json:"id"`
	Title               string     `json:"title"`
	CompanyID           uint       `json:"company_id"`
	AuthorID            uint       `json:"author_id"`
	RecruitPeriodStart  *time.Time `json:"recruit_period_start,omitempty"`
	RecruitPeriodEnd    *time.Time `json:"recruit_period_end,omitempty"`
	IsAlwaysRecruiting  bool       `json:"is_always_recruiting"`
	Education           string     `json:"education"`
	RecruitNumber       int        `json:"recruit_number"`
	Benefits            string     `json:"benefits,omitempty"`
	PreferredConditions string     `json:"preferred_conditions,omitempty"`
	OtherConditions     string     `json:"other_conditions,omitempty"`
	WorkAddress         string     `json:"work_address"`
	WorkPlaceName       string     `json:"work_place_name"`
	PaymentMethod       string     `json:"payment_method"`
	JobCategory         string     `json:"job_category"`
	WorkDuration        string     `json:"work_duration,omitempty"`
	Career              string     `json:"career"`
	EmploymentType      string     `json:"employment_type"`
	Salary              int        `json:"salary"`
	DeadlineAt          *time.Time `json:"deadline_at,omitempty"`
	WorkDays            string     `json:"work_days,omitempty"`
	Description         string     `json:"description"`
	PostingImage        string     `json:"posting_image,omitempty"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	IsFavorited         *bool      `json:"is_favorited"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type postingListResponse struct {
	Items []postingResponse `json:"items"`
	Total int64             `json:"total"`
	Skip  int               `json:"skip"`
	Limit int               `json:"limit"`
}

func newPostingResponse(p database.JobPosting) postingResponse {
	return postingResponse{
		ID:                  p.ID,
		Title:               p.Title,
		CompanyID:           p.CompanyID,
		AuthorID:            p.AuthorID,
		RecruitPeriodStart:  p.RecruitPeriodStart,
		RecruitPeriodEnd:    p.RecruitPeriodEnd,
		IsAlwaysRecruiting:  p.IsAlwaysRecruiting,
		Education:           p.Education,
		RecruitNumber:       p.RecruitNumber,
		Benefits:            p.Benefits,
		PreferredConditions: p.PreferredConditions,
		OtherConditions:     p.OtherConditions,
		WorkAddress:         p.WorkAddress,
		WorkPlaceName:       p.WorkPlaceName,
		PaymentMethod:       p.PaymentMethod,
		JobCategory:         p.JobCategory,
		WorkDuration:        p.WorkDuration,
		Career:              p.Career,
		EmploymentType:      p.EmploymentType,
		Salary:              p.Salary,
		DeadlineAt:          p.DeadlineAt,
		WorkDays:            p.WorkDays,
		Description:         p.Description,
		PostingImage:        p.PostingImage,
		Latitude:            p.Latitude,
		Longitude:           p.Longitude,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// annotateFavorites 为结果批量标注 is_favorited，未登录请求保持 null。
func (h *PostingHandler) annotateFavorites(ctx context.Context, c *gin.Context, items []postingResponse) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return nil
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	favorited, err := h.repo.FavoritedPostingIDs(ctx, userID, ids)
	if err != nil {
		return err
	}

	for i := range items {
		value := favorited[items[i].ID]
		items[i].IsFavorited = &value
	}
	return nil
}

func parseDatePtr(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// validatePostingDates 校验招聘期与截止日期的先后关系。
func validatePostingDates(isAlwaysRecruiting bool, start, end, deadline *time.Time) error {
	if isAlwaysRecruiting {
		return nil
	}
	if start == nil || end == nil {
		return errors.New("recruit period is required unless always recruiting")
	}
	if start.After(*end) {
		return errors.New("recruit period start must not be after end")
	}
	if deadline != nil {
		if deadline.Before(*start) || deadline.After(*end) {
			return errors.New("deadline must fall within the recruit period")
		}
	}
	return nil
}

// Create 发布岗位，可附带经过病毒扫描的岗位图片。
func (h *PostingHandler) Create(c *gin.Context) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createPostingRequest
	if err := c.ShouldBind(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	start, err := parseDatePtr(req.RecruitPeriodStart)
	if err != nil {
		Unprocessable(c, "invalid recruit period start")
		return
	}
	end, err := parseDatePtr(req.RecruitPeriodEnd)
	if err != nil {
		Unprocessable(c, "invalid recruit period end")
		return
	}
	deadline, err := parseDatePtr(req.DeadlineAt)
	if err != nil {
		Unprocessable(c, "invalid deadline")
		return
	}
	if err := validatePostingDates(req.IsAlwaysRecruiting, start, end, deadline); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("company_user_id", uint64(companyUserID)))

	var author database.CompanyUser
	if err := h.db.WithContext(ctx).First(&author, companyUserID).Error; err != nil {
		logger.Error("load company user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	imageKey := ""
	if file, err := c.FormFile("image"); err == nil {
		prefix := fmt.Sprintf("posting-images/%d", author.CompanyID)
		imageKey, err = h.uploader.Upload(c, file, prefix)
		if err != nil {
			if errors.Is(err, errMaliciousFile) {
				BadRequest(c, "malicious file detected")
				return
			}
			logger.Error("upload posting image failed", slog.Any("error", err))
			Internal(c, "failed to upload image")
			return
		}
	}

	p := database.JobPosting{
		Title:               req.Title,
		AuthorID:            author.ID,
		CompanyID:           author.CompanyID,
		RecruitPeriodStart:  start,
		RecruitPeriodEnd:    end,
		IsAlwaysRecruiting:  req.IsAlwaysRecruiting,
		Education:           req.Education,
		RecruitNumber:       req.RecruitNumber,
		Benefits:            req.Benefits,
		PreferredConditions: req.PreferredConditions,
		OtherConditions:     req.OtherConditions,
		WorkAddress:         req.WorkAddress,
		WorkPlaceName:       req.WorkPlaceName,
		PaymentMethod:       req.PaymentMethod,
		JobCategory:         req.JobCategory,
		WorkDuration:        req.WorkDuration,
		Career:              req.Career,
		EmploymentType:      req.EmploymentType,
		Salary:              req.Salary,
		DeadlineAt:          deadline,
		WorkDays:            req.WorkDays,
		Description:         req.Description,
		PostingImage:        imageKey,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
	}

	if err := h.db.WithContext(ctx).Create(&p).Error; err != nil {
		logger.Error("create posting failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("posting created", slog.Uint64("posting_id", uint64(p.ID)))
	resp := newPostingResponse(p)
	resp.PostingImage = h.presignImage(c, p.PostingImage)
	c.JSON(http.StatusCreated, resp)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return value
}

// List 分页列出岗位，最新的在前。
func (h *PostingHandler) List(c *gin.Context) {
	skip := queryInt(c, "skip", 0)
	limit := queryInt(c, "limit", 20)

	ctx := c.Request.Context()
	postings, total, err := h.repo.List(ctx, skip, limit)
	if err != nil {
		h.loggerFromContext(c).Error("list postings failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithList(c, postings, total, skip, limit)
}

// Search 按关键字与筛选条件搜索岗位。
func (h *PostingHandler) Search(c *gin.Context) {
	params := posting.SearchParams{
		Keyword:        c.Query("keyword"),
		Location:       c.Query("location"),
		JobCategory:    c.Query("job_category"),
		EmploymentType: c.Query("employment_type"),
		Sort:           c.DefaultQuery("sort", posting.SortLatest),
		Skip:           queryInt(c, "skip", 0),
		Limit:          queryInt(c, "limit", 20),
	}
	if raw := c.Query("is_always_recruiting"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			Unprocessable(c, "invalid is_always_recruiting")
			return
		}
		params.AlwaysRecruiting = &value
	}
	switch params.Sort {
	case posting.SortLatest, posting.SortSalaryDesc, posting.SortSalaryAsc:
	default:
		Unprocessable(c, "invalid sort")
		return
	}

	ctx := c.Request.Context()
	postings, total, err := h.repo.Search(ctx, params)
	if err != nil {
		h.loggerFromContext(c).Error("search postings failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithList(c, postings, total, params.Skip, params.Limit)
}

// Popular 返回投递数最多的岗位；age_group=true 时只统计同年龄段投递者。
func (h *PostingHandler) Popular(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	ageGroup, _ := strconv.ParseBool(c.DefaultQuery("age_group", "false"))

	var (
		postings []database.JobPosting
		err      error
	)
	if ageGroup {
		userID, ok := userIDFromContext(c)
		if !ok {
			Unauthorized(c)
			return
		}

		var user database.User
		if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
			logger.Error("load user failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if user.Birthday == "" {
			BadRequest(c, "birthday is required for age group ranking")
			return
		}

		postings, err = h.repo.PopularByAgeGroup(ctx, user.Birthday, limit)
	} else {
		postings, err = h.repo.Popular(ctx, limit)
	}
	if err != nil {
		logger.Error("query popular postings failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithList(c, postings, int64(len(postings)), 0, limit)
}

// Detail 返回单个岗位。
func (h *PostingHandler) Detail(c *gin.Context) {
	p, err := h.findPosting(c)
	if err != nil {
		return
	}

	items := []postingResponse{newPostingResponse(*p)}
	items[0].PostingImage = h.presignImage(c, p.PostingImage)
	if err := h.annotateFavorites(c.Request.Context(), c, items); err != nil {
		h.loggerFromContext(c).Error("annotate favorites failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, items[0])
}

type updatePostingRequest struct {
	Title               *string  `json:"title" binding:"omitempty,max=50"`
	RecruitPeriodStart  *string  `json:"recruit_period_start" binding:"omitempty,datetime=2006-01-02"`
	RecruitPeriodEnd    *string  `json:"recruit_period_end" binding:"omitempty,datetime=2006-01-02"`
	IsAlwaysRecruiting  *bool    `json:"is_always_recruiting"`
	Education           *string  `json:"education" binding:"omitempty,oneof=none high college_2 college_4 graduate"`
	RecruitNumber       *int     `json:"recruit_number" binding:"omitempty,min=0"`
	Benefits            *string  `json:"benefits"`
	PreferredConditions *string  `json:"preferred_conditions"`
	OtherConditions     *string  `json:"other_conditions"`
	WorkAddress         *string  `json:"work_address" binding:"omitempty,max=255"`
	WorkPlaceName       *string  `json:"work_place_name" binding:"omitempty,max=64"`
	PaymentMethod       *string  `json:"payment_method" binding:"omitempty,oneof=hourly daily weekly monthly yearly"`
	JobCategory         *string  `json:"job_category" binding:"omitempty,max=64"`
	WorkDuration        *string  `json:"work_duration" binding:"omitempty,oneof=more_3_months more_6_months more_1_year more_3_years negotiable"`
	Career              *string  `json:"career" binding:"omitempty,max=50"`
	EmploymentType      *string  `json:"employment_type" binding:"omitempty,max=50"`
	Salary              *int     `json:"salary" binding:"omitempty,min=0"`
	DeadlineAt          *string  `json:"deadline_at" binding:"omitempty,datetime=2006-01-02"`
	WorkDays            *string  `json:"work_days" binding:"omitempty,max=255"`
	Description         *string  `json:"description"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
}

// Update 部分更新岗位，仅限发布者。
func (h *PostingHandler) Update(c *gin.Context) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updatePostingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	p, err := h.findPosting(c)
	if err != nil {
		return
	}
	if p.AuthorID != companyUserID {
		Forbidden(c, "only the author can modify this posting")
		return
	}

	// 先合并日期字段，再整体校验先后关系。
	start, end, deadline := p.RecruitPeriodStart, p.RecruitPeriodEnd, p.DeadlineAt
	always := p.IsAlwaysRecruiting
	if req.RecruitPeriodStart != nil {
		if start, err = parseDatePtr(*req.RecruitPeriodStart); err != nil {
			Unprocessable(c, "invalid recruit period start")
			return
		}
	}
	if req.RecruitPeriodEnd != nil {
		if end, err = parseDatePtr(*req.RecruitPeriodEnd); err != nil {
			Unprocessable(c, "invalid recruit period end")
			return
		}
	}
	if req.DeadlineAt != nil {
		if deadline, err = parseDatePtr(*req.DeadlineAt); err != nil {
			Unprocessable(c, "invalid deadline")
			return
		}
	}
	if req.IsAlwaysRecruiting != nil {
		always = *req.IsAlwaysRecruiting
	}
	if err := validatePostingDates(always, start, end, deadline); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	updates := map[string]any{
		"recruit_period_start": start,
		"recruit_period_end":   end,
		"deadline_at":          deadline,
		"is_always_recruiting": always,
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Education != nil {
		updates["education"] = *req.Education
	}
	if req.RecruitNumber != nil {
		updates["recruit_number"] = *req.RecruitNumber
	}
	if req.Benefits != nil {
		updates["benefits"] = *req.Benefits
	}
	if req.PreferredConditions != nil {
		updates["preferred_conditions"] = *req.PreferredConditions
	}
	if req.OtherConditions != nil {
		updates["other_conditions"] = *req.OtherConditions
	}
	if req.WorkAddress != nil {
		updates["work_address"] = *req.WorkAddress
	}
	if req.WorkPlaceName != nil {
		updates["work_place_name"] = *req.WorkPlaceName
	}
	if req.PaymentMethod != nil {
		updates["payment_method"] = *req.PaymentMethod
	}
	if req.JobCategory != nil {
		updates["job_category"] = *req.JobCategory
	}
	if req.WorkDuration != nil {
		updates["work_duration"] = *req.WorkDuration
	}
	if req.Career != nil {
		updates["career"] = *req.Career
	}
	if req.EmploymentType != nil {
		updates["employment_type"] = *req.EmploymentType
	}
	if req.Salary != nil {
		updates["salary"] = *req.Salary
	}
	if req.WorkDays != nil {
		updates["work_days"] = *req.WorkDays
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Latitude != nil {
		updates["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		updates["longitude"] = *req.Longitude
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
		h.loggerFromContext(c).Error("update posting failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).First(p, p.ID).Error; err != nil {
		Internal(c, "internal error")
		return
	}

	resp := newPostingResponse(*p)
	resp.PostingImage = h.presignImage(c, p.PostingImage)
	c.JSON(http.StatusOK, resp)
}

// Delete 删除岗位及其投递与收藏，仅限发布者。
func (h *PostingHandler) Delete(c *gin.Context) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	p, err := h.findPosting(c)
	if err != nil {
		return
	}
	if p.AuthorID != companyUserID {
		Forbidden(c, "only the author can delete this posting")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("posting_id", uint64(p.ID)))

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_posting_id = ?", p.ID).Delete(&database.JobApplication{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_posting_id = ?", p.ID).Delete(&database.Favorite{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.JobPosting{}, p.ID).Error
	})
	if err != nil {
		logger.Error("delete posting failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.uploader.Remove(ctx, p.PostingImage); err != nil {
		logger.Warn("remove posting image failed", slog.Any("error", err))
	}

	logger.Info("posting deleted")
	c.Status(http.StatusNoContent)
}

// Recommend 按用户兴趣推荐岗位，无命中时返回 404。
func (h *PostingHandler) Recommend(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	postings, err := h.repo.RecommendedByInterests(ctx, userID)
	if err != nil {
		h.loggerFromContext(c).Error("recommend postings failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if len(postings) == 0 {
		NotFound(c, "no recommended postings")
		return
	}

	h.replyWithList(c, postings, int64(len(postings)), 0, len(postings))
}

func (h *PostingHandler) replyWithList(c *gin.Context, postings []database.JobPosting, total int64, skip, limit int) {
	items := make([]postingResponse, 0, len(postings))
	for _, p := range postings {
		item := newPostingResponse(p)
		item.PostingImage = h.presignImage(c, p.PostingImage)
		items = append(items, item)
	}
	if err := h.annotateFavorites(c.Request.Context(), c, items); err != nil {
		h.loggerFromContext(c).Error("annotate favorites failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, postingListResponse{
		Items: items,
		Total: total,
		Skip:  skip,
		Limit: limit,
	})
}

// findPosting 解析路径参数并加载岗位，出错时已写入响应。
func (h *PostingHandler) findPosting(c *gin.Context) (*database.JobPosting, error) {
	postingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid posting id")
		return nil, err
	}

	var p database.JobPosting
	if err := h.db.WithContext(c.Request.Context()).First(&p, uint(postingID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "posting not found")
			return nil, err
		}
		Internal(c, "internal error")
		return nil, err
	}
	return &p, nil
}

// presignImage 把对象 Key 换成限时链接，失败时退回 Key 本身。
func (h *PostingHandler) presignImage(c *gin.Context, objectKey string) string {
	url, err := h.uploader.ResolveURL(c.Request.Context(), objectKey)
	if err != nil {
		h.loggerFromContext(c).Warn("presign posting image failed", slog.Any("error", err))
		return objectKey
	}
	return url
}

func (h *PostingHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
