package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"jobboard/internal/auth"
	"jobboard/internal/database"
	"jobboard/internal/oauth"
)

// OAuthHandler 处理第三方授权码登录。
type OAuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	authHandler *AuthHandler
	providers   map[string]oauth.Provider
	logger      *slog.Logger
}

// NewOAuthHandler 构造第三方登录处理器。
func NewOAuthHandler(db *gorm.DB, authService *auth.AuthService, authHandler *AuthHandler, providers map[string]oauth.Provider, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		db:          db,
		authService: authService,
		authHandler: authHandler,
		providers:   providers,
		logger:      logger,
	}
}

type oauthLoginRequest struct {
	Code string `json:"code" binding:"required"`
}

// Login 用授权码完成登录。已有账号直接发放令牌；
// 新用户返回 need_register，并预置一条已验证的邮箱验证记录。
func (h *OAuthHandler) Login(c *gin.Context) {
	providerName := c.Param("provider")
	provider, ok := h.providers[providerName]
	if !ok {
		NotFound(c, "unknown oauth provider")
		return
	}

	var req oauthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("provider", providerName))

	profile, err := provider.Exchange(ctx, req.Code)
	if err != nil {
		logger.Error("oauth exchange failed", slog.Any("error", err))
		BadGateway(c, "oauth provider unavailable")
		return
	}

	logger = logger.With(slog.String("email", profile.Email))

	var user database.User
	err = h.db.WithContext(ctx).Where("email = ?", profile.Email).First(&user).Error
	switch {
	case err == nil:
		if !user.IsActive {
			if err := h.db.WithContext(ctx).Model(&user).Update("is_active", true).Error; err != nil {
				logger.Error("activate user failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}

		tokenPair, err := h.authService.GenerateTokenPair(user.ID, database.UserTypeUser)
		if err != nil {
			logger.Error("generate token pair failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		logger.Info("oauth login", slog.Uint64("user_id", uint64(user.ID)))
		h.authHandler.replyWithTokenPair(c, tokenPair)

	case errors.Is(err, gorm.ErrRecordNotFound):
		// 提前写入已验证记录，后续注册无需再走邮件验证。
		record := database.EmailVerification{
			Email:      profile.Email,
			Token:      uuid.NewString(),
			UserType:   database.UserTypeUser,
			IsVerified: true,
			ExpiresAt:  time.Now().Add(verificationTTL),
		}
		if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
			logger.Error("create verification record failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}

		logger.Info("oauth login requires registration")
		c.JSON(http.StatusOK, gin.H{
			"need_register": true,
			"email":         profile.Email,
			"name":          profile.Name,
		})

	default:
		logger.Error("oauth user lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}

func (h *OAuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
