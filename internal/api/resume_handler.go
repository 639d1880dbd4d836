package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/database"
)

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	db       *gorm.DB
	uploader *ImageUploader
	logger   *slog.Logger
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, uploader *ImageUploader, logger *slog.Logger) *ResumeHandler {
	return &ResumeHandler{
		db:       db,
		uploader: uploader,
		logger:   logger,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

type educationPayload struct {
	EducationType   string `json:"education_type"`
	SchoolName      string `json:"school_name"`
	EducationStatus string `json:"education_status"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
}

type experiencePayload struct {
	CompanyName string `json:"company_name"`
	Position    string `json:"position"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

type createResumeRequest struct {
	DesiredArea  string `form:"desired_area" binding:"max=255"`
	Introduction string `form:"introduction"`
	Educations   string `form:"educations"`
	Experiences  string `form:"experiences"`
}

type resumeResponse struct {
	ID           uint                `json:"id"`
	ResumeImage  string              `json:"resume_image,omitempty"`
	DesiredArea  string              `json:"desired_area,omitempty"`
	Introduction string              `json:"introduction,omitempty"`
	Educations   []educationPayload  `json:"educations"`
	Experiences  []experiencePayload `json:"experiences"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func newResumeResponse(resume database.Resume) resumeResponse {
	educations := make([]educationPayload, 0, len(resume.Educations))
	for _, e := range resume.Educations {
		educations = append(educations, educationPayload{
			EducationType:   e.EducationType,
			SchoolName:      e.SchoolName,
			EducationStatus: e.EducationStatus,
			StartDate:       formatDatePtr(e.StartDate),
			EndDate:         formatDatePtr(e.EndDate),
		})
	}
	experiences := make([]experiencePayload, 0, len(resume.Experiences))
	for _, e := range resume.Experiences {
		experiences = append(experiences, experiencePayload{
			CompanyName: e.CompanyName,
			Position:    e.Position,
			StartDate:   formatDatePtr(e.StartDate),
			EndDate:     formatDatePtr(e.EndDate),
			Description: e.Description,
		})
	}
	return resumeResponse{
		ID:           resume.ID,
		ResumeImage:  resume.ResumeImage,
		DesiredArea:  resume.DesiredArea,
		Introduction: resume.Introduction,
		Educations:   educations,
		Experiences:  experiences,
		CreatedAt:    resume.CreatedAt,
		UpdatedAt:    resume.UpdatedAt,
	}
}

func decodeEducations(raw string) ([]educationPayload, error) {
	if raw == "" {
		return nil, nil
	}
	var items []educationPayload
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode educations: %w", err)
	}
	return items, nil
}

func decodeExperiences(raw string) ([]experiencePayload, error) {
	if raw == "" {
		return nil, nil
	}
	var items []experiencePayload
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode experiences: %w", err)
	}
	return items, nil
}

func educationModels(resumeID uint, items []educationPayload) ([]database.ResumeEducation, error) {
	models := make([]database.ResumeEducation, 0, len(items))
	for _, item := range items {
		start, err := parseDatePtr(item.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid education start date %q", item.StartDate)
		}
		end, err := parseDatePtr(item.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid education end date %q", item.EndDate)
		}
		models = append(models, database.ResumeEducation{
			ResumeID:        resumeID,
			EducationType:   item.EducationType,
			SchoolName:      item.SchoolName,
			EducationStatus: item.EducationStatus,
			StartDate:       start,
			EndDate:         end,
		})
	}
	return models, nil
}

func experienceModels(resumeID uint, items []experiencePayload) ([]database.ResumeExperience, error) {
	models := make([]database.ResumeExperience, 0, len(items))
	for _, item := range items {
		start, err := parseDatePtr(item.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid experience start date %q", item.StartDate)
		}
		end, err := parseDatePtr(item.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid experience end date %q", item.EndDate)
		}
		models = append(models, database.ResumeExperience{
			ResumeID:    resumeID,
			CompanyName: item.CompanyName,
			Position:    item.Position,
			StartDate:   start,
			EndDate:     end,
			Description: item.Description,
		})
	}
	return models, nil
}

// CreateResume 保存一份新的简历，学历与经历以 JSON 列表随表单提交。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createResumeRequest
	if err := c.ShouldBind(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	educations, err := decodeEducations(req.Educations)
	if err != nil {
		Unprocessable(c, err.Error())
		return
	}
	experiences, err := decodeExperiences(req.Experiences)
	if err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	imageKey := ""
	if file, err := c.FormFile("image"); err == nil {
		prefix := fmt.Sprintf("resume-images/%d", userID)
		imageKey, err = h.uploader.Upload(c, file, prefix)
		if err != nil {
			if errors.Is(err, errMaliciousFile) {
				BadRequest(c, "malicious file detected")
				return
			}
			logger.Error("upload resume image failed", slog.Any("error", err))
			Internal(c, "failed to upload image")
			return
		}
	}

	resume := database.Resume{
		UserID:       userID,
		ResumeImage:  imageKey,
		DesiredArea:  req.DesiredArea,
		Introduction: req.Introduction,
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&resume).Error; err != nil {
			return err
		}
		eduModels, err := educationModels(resume.ID, educations)
		if err != nil {
			return err
		}
		if len(eduModels) > 0 {
			if err := tx.Create(&eduModels).Error; err != nil {
				return err
			}
		}
		expModels, err := experienceModels(resume.ID, experiences)
		if err != nil {
			return err
		}
		if len(expModels) > 0 {
			if err := tx.Create(&expModels).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("create resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	created, err := h.loadResume(ctx, resume.ID)
	if err != nil {
		Internal(c, "internal error")
		return
	}

	logger.Info("resume created", slog.Uint64("resume_id", uint64(resume.ID)))
	c.JSON(http.StatusCreated, h.newResponse(c, *created))
}

// GetLatestResume 返回用户最近创建的简历。
func (h *ResumeHandler) GetLatestResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	resume, err := latestResumeForUser(ctx, h.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, h.newResponse(c, *resume))
}

// GetResume 返回指定 ID 的简历，仅限本人。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.replyResumeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.newResponse(c, *resume))
}

type updateResumeRequest struct {
	DesiredArea  *string              `json:"desired_area" binding:"omitempty,max=255"`
	Introduction *string              `json:"introduction"`
	Educations   *[]educationPayload  `json:"educations"`
	Experiences  *[]experiencePayload `json:"experiences"`
}

// UpdateResume 部分更新简历。
// 学历或经历列表一旦出现（哪怕为空）就整体替换对应子表。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.replyResumeError(c, err)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("resume_id", uint64(resume.ID)))

	updates := map[string]any{}
	if req.DesiredArea != nil {
		updates["desired_area"] = *req.DesiredArea
	}
	if req.Introduction != nil {
		updates["introduction"] = *req.Introduction
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(resume).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Educations != nil {
			if err := tx.Unscoped().Where("resume_id = ?", resume.ID).Delete(&database.ResumeEducation{}).Error; err != nil {
				return err
			}
			models, err := educationModels(resume.ID, *req.Educations)
			if err != nil {
				return err
			}
			if len(models) > 0 {
				if err := tx.Create(&models).Error; err != nil {
					return err
				}
			}
		}
		if req.Experiences != nil {
			if err := tx.Unscoped().Where("resume_id = ?", resume.ID).Delete(&database.ResumeExperience{}).Error; err != nil {
				return err
			}
			models, err := experienceModels(resume.ID, *req.Experiences)
			if err != nil {
				return err
			}
			if len(models) > 0 {
				if err := tx.Create(&models).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("update resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	updated, err := h.loadResume(ctx, resume.ID)
	if err != nil {
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, h.newResponse(c, *updated))
}

// DeleteResume 删除指定简历及其子记录。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.replyResumeError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("resume_id = ?", resume.ID).Delete(&database.ResumeEducation{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("resume_id = ?", resume.ID).Delete(&database.ResumeExperience{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&database.Resume{}, resume.ID).Error
	})
	if err != nil {
		h.loggerFromContext(c).Error("delete resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.uploader.Remove(ctx, resume.ResumeImage); err != nil {
		h.loggerFromContext(c).Warn("remove resume image failed", slog.Any("error", err))
	}

	c.Status(http.StatusNoContent)
}

// newResponse 在序列化前把简历图片的对象 Key 换成限时链接。
// 投递快照仍存 Key 本身（见 application_handler），链接过期不影响快照。
func (h *ResumeHandler) newResponse(c *gin.Context, resume database.Resume) resumeResponse {
	resp := newResumeResponse(resume)
	url, err := h.uploader.ResolveURL(c.Request.Context(), resume.ResumeImage)
	if err != nil {
		h.loggerFromContext(c).Warn("presign resume image failed", slog.Any("error", err))
		return resp
	}
	resp.ResumeImage = url
	return resp
}

func (h *ResumeHandler) replyResumeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidResumeID):
		BadRequest(c, "invalid resume id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resume not found")
	default:
		Internal(c, "internal error")
	}
}

func (h *ResumeHandler) loadResume(ctx context.Context, resumeID uint) (*database.Resume, error) {
	var resume database.Resume
	err := h.db.WithContext(ctx).
		Preload("Educations").
		Preload("Experiences").
		First(&resume, resumeID).Error
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

func (h *ResumeHandler) getResumeForUser(ctx context.Context, idParam string, userID uint) (*database.Resume, error) {
	resumeID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidResumeID
	}

	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Preload("Educations").
		Preload("Experiences").
		Where("id = ? AND user_id = ?", uint(resumeID), userID).
		First(&resume).Error; err != nil {
		return nil, err
	}
	return &resume, nil
}

// latestResumeForUser 返回用户最近创建的简历（含子记录）。
func latestResumeForUser(ctx context.Context, db *gorm.DB, userID uint) (*database.Resume, error) {
	var resume database.Resume
	err := db.WithContext(ctx).
		Preload("Educations").
		Preload("Experiences").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&resume).Error
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

func (h *ResumeHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
