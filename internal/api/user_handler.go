package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/auth"
	"jobboard/internal/database"
)

// UserHandler 处理求职者账号的注册、登录与资料维护。
type UserHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	authHandler *AuthHandler
	logger      *slog.Logger
}

// NewUserHandler 构造求职者处理器。
func NewUserHandler(db *gorm.DB, authService *auth.AuthService, authHandler *AuthHandler, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		db:          db,
		authService: authService,
		authHandler: authHandler,
		logger:      logger,
	}
}

type registerUserRequest struct {
	Name           string   `json:"name" binding:"required,max=50"`
	Email          string   `json:"email" binding:"required,email,max=255"`
	Password       string   `json:"password" binding:"required,min=8,max=72"`
	PhoneNumber    string   `json:"phone_number" binding:"max=50"`
	Birthday       string   `json:"birthday" binding:"omitempty,datetime=2006-01-02"`
	Gender         string   `json:"gender" binding:"omitempty,oneof=male female"`
	SignupPurpose  string   `json:"signup_purpose"`
	ReferralSource string   `json:"referral_source"`
	Interests      []string `json:"interests"`
}

type interestResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	IsCustom bool   `json:"is_custom"`
}

type userResponse struct {
	ID             uint               `json:"id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	UserImage      string             `json:"user_image,omitempty"`
	PhoneNumber    string             `json:"phone_number,omitempty"`
	Birthday       string             `json:"birthday,omitempty"`
	Gender         string             `json:"gender,omitempty"`
	SignupPurpose  string             `json:"signup_purpose,omitempty"`
	ReferralSource string             `json:"referral_source,omitempty"`
	Interests      []interestResponse `json:"interests"`
	CreatedAt      time.Time          `json:"created_at"`
}

func newUserResponse(user database.User) userResponse {
	interests := make([]interestResponse, 0, len(user.UserInterests))
	for _, ui := range user.UserInterests {
		interests = append(interests, interestResponse{
			ID:       ui.Interest.ID,
			Name:     ui.Interest.Name,
			IsCustom: ui.Interest.IsCustom,
		})
	}
	return userResponse{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		UserImage:      user.UserImage,
		PhoneNumber:    user.PhoneNumber,
		Birthday:       user.Birthday,
		Gender:         user.Gender,
		SignupPurpose:  user.SignupPurpose,
		ReferralSource: user.ReferralSource,
		Interests:      interests,
		CreatedAt:      user.CreatedAt,
	}
}

// Register 创建求职者账号，要求邮箱先完成验证。
func (h *UserHandler) Register(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	verified, err := emailVerified(ctx, h.db, req.Email, database.UserTypeUser)
	if err != nil {
		logger.Error("verification lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !verified {
		BadRequest(c, "email is not verified")
		return
	}

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		logger.Info("register conflict: email already registered")
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Name:           req.Name,
		Email:          req.Email,
		PasswordHash:   hashed,
		PhoneNumber:    req.PhoneNumber,
		Birthday:       req.Birthday,
		Gender:         req.Gender,
		SignupPurpose:  req.SignupPurpose,
		ReferralSource: req.ReferralSource,
		IsActive:       true,
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return replaceUserInterests(tx, user.ID, req.Interests)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.Info("register conflict on insert")
			Conflict(c, "email already registered")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))

	created, err := h.loadUser(ctx, user.ID)
	if err != nil {
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, newUserResponse(*created))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 校验口令并返回 Token。
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	if err := h.authHandler.checkLoginThrottle(ctx, c.ClientIP(), req.Email); err != nil {
		h.authHandler.replyThrottled(c, err)
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			_ = h.authHandler.registerLoginFailure(ctx, req.Email)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		_ = h.authHandler.registerLoginFailure(ctx, req.Email)
		Unauthorized(c)
		return
	}

	h.authHandler.clearLoginFailures(ctx, req.Email)

	tokenPair, err := h.authService.GenerateTokenPair(user.ID, database.UserTypeUser)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.authHandler.replyWithTokenPair(c, tokenPair)
}

// Me 返回当前登录的求职者资料。
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	user, err := h.loadUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, newUserResponse(*user))
}

type updateUserRequest struct {
	Name            *string   `json:"name" binding:"omitempty,max=50"`
	PhoneNumber     *string   `json:"phone_number" binding:"omitempty,max=50"`
	Birthday        *string   `json:"birthday" binding:"omitempty,datetime=2006-01-02"`
	Gender          *string   `json:"gender" binding:"omitempty,oneof=male female"`
	SignupPurpose   *string   `json:"signup_purpose"`
	ReferralSource  *string   `json:"referral_source"`
	Interests       *[]string `json:"interests"`
	NewPassword     *string   `json:"new_password" binding:"omitempty,min=8,max=72"`
	ConfirmPassword *string   `json:"confirm_password"`
}

// Update 部分更新求职者资料，仅限本人。
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid user id")
		return
	}
	if uint(targetID) != userID {
		Forbidden(c, "cannot modify another user")
		return
	}

	if req.NewPassword != nil {
		if req.ConfirmPassword == nil || *req.NewPassword != *req.ConfirmPassword {
			BadRequest(c, "password confirmation does not match")
			return
		}
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.PhoneNumber != nil {
		updates["phone_number"] = *req.PhoneNumber
	}
	if req.Birthday != nil {
		updates["birthday"] = *req.Birthday
	}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if req.SignupPurpose != nil {
		updates["signup_purpose"] = *req.SignupPurpose
	}
	if req.ReferralSource != nil {
		updates["referral_source"] = *req.ReferralSource
	}
	if req.NewPassword != nil {
		hashed, err := h.authService.HashPassword(*req.NewPassword)
		if err != nil {
			logger.Error("hash password failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		updates["password_hash"] = hashed
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Interests != nil {
			// 硬删除旧关联，软删除的行会继续占用唯一索引。
			if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&database.UserInterest{}).Error; err != nil {
				return err
			}
			return replaceUserInterests(tx, userID, *req.Interests)
		}
		return nil
	})
	if err != nil {
		logger.Error("update user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	updated, err := h.loadUser(ctx, userID)
	if err != nil {
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(*updated))
}

// Delete 删除求职者账号及其关联数据，仅限本人。
func (h *UserHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid user id")
		return
	}
	if uint(targetID) != userID {
		Forbidden(c, "cannot delete another user")
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Unscoped().Delete(&database.User{}, userID).Error; err != nil {
		h.loggerFromContext(c).Error("delete user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusNoContent)
}

type resetPasswordRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ResetPassword 通过姓名+邮箱找回账号并重置密码。
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	var user database.User
	if err := h.db.WithContext(ctx).
		Where("name = ? AND email = ?", req.Name, req.Email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hashed).Error; err != nil {
		logger.Error("reset password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

func (h *UserHandler) loadUser(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	err := h.db.WithContext(ctx).
		Preload("UserInterests.Interest").
		First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *UserHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}

// replaceUserInterests 将用户兴趣设置为给定名称集合。
// 已存在的字典项直接复用，未知名称创建为自定义项。
func replaceUserInterests(tx *gorm.DB, userID uint, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}

		var interest database.Interest
		err := tx.Where("name = ?", name).First(&interest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			interest = database.Interest{Code: name, Name: name, IsCustom: true}
			if err := tx.Create(&interest).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		link := database.UserInterest{UserID: userID, InterestID: interest.ID}
		if err := tx.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return err
		}
	}
	return nil
}

// emailVerified 判断邮箱是否存在已验证且未过期的验证记录。
func emailVerified(ctx context.Context, db *gorm.DB, email, userType string) (bool, error) {
	var record database.EmailVerification
	err := db.WithContext(ctx).
		Where("email = ? AND user_type = ? AND is_verified = ? AND expires_at > ?",
			email, userType, true, time.Now()).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
