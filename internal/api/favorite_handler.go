package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/database"
)

// FavoriteHandler 处理岗位收藏。
type FavoriteHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewFavoriteHandler 构造收藏处理器。
func NewFavoriteHandler(db *gorm.DB, logger *slog.Logger) *FavoriteHandler {
	return &FavoriteHandler{db: db, logger: logger}
}

type createFavoriteRequest struct {
	JobPostingID uint `json:"job_posting_id" binding:"required"`
}

type favoriteResponse struct {
	ID           uint      `json:"id"`
	JobPostingID uint      `json:"job_posting_id"`
	PostingTitle string    `json:"posting_title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Create 收藏岗位，重复收藏返回 409。
func (h *FavoriteHandler) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("posting_id", uint64(req.JobPostingID)),
	)

	var posting database.JobPosting
	if err := h.db.WithContext(ctx).First(&posting, req.JobPostingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "posting not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	var existing database.Favorite
	err := h.db.WithContext(ctx).
		Where("user_id = ? AND job_posting_id = ?", userID, req.JobPostingID).
		First(&existing).Error
	if err == nil {
		Conflict(c, "posting already favorited")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		Internal(c, "internal error")
		return
	}

	favorite := database.Favorite{UserID: userID, JobPostingID: req.JobPostingID}
	if err := h.db.WithContext(ctx).Create(&favorite).Error; err != nil {
		// 唯一约束兜住并发重复收藏。
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "posting already favorited")
			return
		}
		logger.Error("create favorite failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusCreated, favoriteResponse{
		ID:           favorite.ID,
		JobPostingID: favorite.JobPostingID,
		PostingTitle: posting.Title,
		CreatedAt:    favorite.CreatedAt,
	})
}

// Delete 取消收藏，不存在时返回 404。
func (h *FavoriteHandler) Delete(c *gin.Context) {
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

	ctx := c.Request.Context()
	var favorite database.Favorite
	if err := h.db.WithContext(ctx).
		Where("user_id = ? AND job_posting_id = ?", userID, uint(postingID)).
		First(&favorite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "favorite not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Unscoped().Delete(&database.Favorite{}, favorite.ID).Error; err != nil {
		h.loggerFromContext(c).Error("delete favorite failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusNoContent)
}

// List 列出当前用户的收藏，岗位标题随单次连接查询带出。
func (h *FavoriteHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var favorites []database.Favorite
	err := h.db.WithContext(c.Request.Context()).
		Preload("JobPosting").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favorites).Error
	if err != nil {
		h.loggerFromContext(c).Error("list favorites failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]favoriteResponse, 0, len(favorites))
	for _, favorite := range favorites {
		items = append(items, favoriteResponse{
			ID:           favorite.ID,
			JobPostingID: favorite.JobPostingID,
			PostingTitle: favorite.JobPosting.Title,
			CreatedAt:    favorite.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

func (h *FavoriteHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
