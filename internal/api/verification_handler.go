package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

const verificationTTL = 30 * time.Minute

// VerificationHandler 处理注册前的邮箱验证流程。
type VerificationHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewVerificationHandler 构造验证处理器。
func NewVerificationHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type sendVerificationRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	UserType string `json:"user_type" binding:"required,oneof=user company"`
}

// SendVerification 创建验证记录并投递验证邮件任务。
// 邮件入队失败只记录日志，记录本身仍然有效。
func (h *VerificationHandler) SendVerification(c *gin.Context) {
	var req sendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(
		slog.String("email", req.Email),
		slog.String("user_type", req.UserType),
	)

	record := database.EmailVerification{
		Email:     req.Email,
		Token:     uuid.NewString(),
		UserType:  req.UserType,
		ExpiresAt: time.Now().Add(verificationTTL),
	}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		logger.Error("create verification record failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	task, err := tasks.NewVerificationEmailTask(record.Email, record.Token, record.UserType, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build verification task failed", slog.Any("error", err))
	} else if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		logger.Error("enqueue verification task failed", slog.Any("error", err))
	}

	logger.Info("verification requested")
	c.JSON(http.StatusCreated, gin.H{"message": "verification email sent"})
}

// VerifyEmail 根据 token 将验证记录标记为已验证。
func (h *VerificationHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		BadRequest(c, "token is required")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	var record database.EmailVerification
	if err := h.db.WithContext(ctx).Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "verification request not found")
			return
		}
		logger.Error("verification lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if record.IsVerified {
		BadRequest(c, "email already verified")
		return
	}
	if time.Now().After(record.ExpiresAt) {
		BadRequest(c, "verification token expired")
		return
	}

	if err := h.db.WithContext(ctx).Model(&record).Update("is_verified", true).Error; err != nil {
		logger.Error("mark verified failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("email verified", slog.String("email", record.Email))
	c.JSON(http.StatusOK, gin.H{"message": "email verified"})
}

func (h *VerificationHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
