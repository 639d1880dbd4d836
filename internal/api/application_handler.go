package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

// ApplicationHandler 处理投递的创建、查询与状态变更。
type ApplicationHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewApplicationHandler 构造投递处理器。
func NewApplicationHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type createApplicationRequest struct {
	JobPostingID uint `json:"job_posting_id" binding:"required"`
}

type applicationResponse struct {
	ID           uint            `json:"id"`
	JobPostingID uint            `json:"job_posting_id"`
	PostingTitle string          `json:"posting_title,omitempty"`
	Status       string          `json:"status"`
	ResumesData  json.RawMessage `json:"resumes_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newApplicationResponse(app database.JobApplication, includeSnapshot bool) applicationResponse {
	resp := applicationResponse{
		ID:           app.ID,
		JobPostingID: app.JobPostingID,
		PostingTitle: app.JobPosting.Title,
		Status:       app.Status,
		CreatedAt:    app.CreatedAt,
	}
	if includeSnapshot {
		resp.ResumesData = json.RawMessage(app.ResumesData)
	}
	return resp
}

// Create 用最新简历投递岗位。
// 简历内容以 JSON 快照冻结，通知邮件失败不会回滚投递。
func (h *ApplicationHandler) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("posting_id", uint64(req.JobPostingID)),
	)

	resume, err := latestResumeForUser(ctx, h.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "no resume to apply with")
			return
		}
		logger.Error("load latest resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var posting database.JobPosting
	if err := h.db.WithContext(ctx).First(&posting, req.JobPostingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "posting not found")
			return
		}
		logger.Error("load posting failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var existing database.JobApplication
	err = h.db.WithContext(ctx).
		Where("user_id = ? AND job_posting_id = ?", userID, req.JobPostingID).
		First(&existing).Error
	if err == nil {
		Conflict(c, "already applied to this posting")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("duplicate check failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	snapshot, err := json.Marshal(newResumeResponse(*resume))
	if err != nil {
		logger.Error("marshal resume snapshot failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	app := database.JobApplication{
		UserID:       userID,
		JobPostingID: posting.ID,
		ResumeID:     resume.ID,
		Status:       database.ApplicationApplied,
		ResumesData:  datatypes.JSON(snapshot),
	}
	if err := h.db.WithContext(ctx).Create(&app).Error; err != nil {
		// 唯一约束兜住并发重复投递。
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "already applied to this posting")
			return
		}
		logger.Error("create application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 通知属于尽力而为：入队失败只记录日志。
	task, err := tasks.NewApplicationNotifyTask(app.ID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build notify task failed", slog.Any("error", err))
	} else if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		logger.Error("enqueue notify task failed", slog.Any("error", err))
	}

	logger.Info("application created", slog.Uint64("application_id", uint64(app.ID)))

	app.JobPosting = posting
	c.JSON(http.StatusCreated, newApplicationResponse(app, true))
}

// ListMine 列出当前用户的全部投递。
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var apps []database.JobApplication
	err := h.db.WithContext(c.Request.Context()).
		Preload("JobPosting").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		h.loggerFromContext(c).Error("list applications failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, newApplicationResponse(app, false))
	}
	c.JSON(http.StatusOK, items)
}

// DetailByPosting 返回当前用户对某岗位的投递详情。
func (h *ApplicationHandler) DetailByPosting(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	postingID, err := strconv.ParseUint(c.Param("job_posting_id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid posting id")
		return
	}

	var app database.JobApplication
	err = h.db.WithContext(c.Request.Context()).
		Preload("JobPosting").
		Where("user_id = ? AND job_posting_id = ?", userID, uint(postingID)).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, newApplicationResponse(app, true))
}

// Delete 取消自己的投递。
func (h *ApplicationHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	appID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid application id")
		return
	}

	ctx := c.Request.Context()
	var app database.JobApplication
	if err := h.db.WithContext(ctx).First(&app, uint(appID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		Internal(c, "internal error")
		return
	}
	if app.UserID != userID {
		Forbidden(c, "cannot cancel another user's application")
		return
	}

	if err := h.db.WithContext(ctx).Unscoped().Delete(&database.JobApplication{}, app.ID).Error; err != nil {
		h.loggerFromContext(c).Error("delete application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusNoContent)
}

// companyScope 返回企业账号所属企业的 ID，出错时已写入响应。
func (h *ApplicationHandler) companyScope(c *gin.Context) (uint, bool) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, false
	}

	var companyUser database.CompanyUser
	if err := h.db.WithContext(c.Request.Context()).First(&companyUser, companyUserID).Error; err != nil {
		Internal(c, "internal error")
		return 0, false
	}
	return companyUser.CompanyID, true
}

// ListForCompany 列出投向本企业岗位的全部投递。
func (h *ApplicationHandler) ListForCompany(c *gin.Context) {
	companyID, ok := h.companyScope(c)
	if !ok {
		return
	}

	var apps []database.JobApplication
	err := h.db.WithContext(c.Request.Context()).
		Preload("JobPosting").
		Joins("JOIN job_postings ON job_postings.id = job_applications.job_posting_id AND job_postings.deleted_at IS NULL").
		Where("job_postings.company_id = ?", companyID).
		Order("job_applications.created_at DESC").
		Find(&apps).Error
	if err != nil {
		h.loggerFromContext(c).Error("list company applications failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, newApplicationResponse(app, false))
	}
	c.JSON(http.StatusOK, items)
}

// findForCompany 加载投递并校验其岗位属于本企业，出错时已写入响应。
func (h *ApplicationHandler) findForCompany(c *gin.Context) (*database.JobApplication, bool) {
	companyID, ok := h.companyScope(c)
	if !ok {
		return nil, false
	}

	appID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid application id")
		return nil, false
	}

	var app database.JobApplication
	err = h.db.WithContext(c.Request.Context()).
		Preload("JobPosting").
		First(&app, uint(appID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return nil, false
		}
		Internal(c, "internal error")
		return nil, false
	}
	if app.JobPosting.CompanyID != companyID {
		Forbidden(c, "application belongs to another company")
		return nil, false
	}
	return &app, true
}

// DetailForCompany 返回单条投递及其简历快照。
func (h *ApplicationHandler) DetailForCompany(c *gin.Context) {
	app, ok := h.findForCompany(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newApplicationResponse(*app, true))
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=applied passed accepted rejected"`
}

// UpdateStatus 无条件覆盖投递状态，不做状态机约束。
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	app, ok := h.findForCompany(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).
		Model(app).
		Update("status", req.Status).Error; err != nil {
		h.loggerFromContext(c).Error("update application status failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	app.Status = req.Status
	c.JSON(http.StatusOK, newApplicationResponse(*app, false))
}

func (h *ApplicationHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
