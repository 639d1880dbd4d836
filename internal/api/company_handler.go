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
	"jobboard/internal/brn"
	"jobboard/internal/database"
)

// CompanyHandler 处理企业账号的注册、登录与资料维护。
type CompanyHandler struct {
	db           *gorm.DB
	authService  *auth.AuthService
	authHandler  *AuthHandler
	brnValidator brn.Validator
	logger       *slog.Logger
}

// NewCompanyHandler 构造企业处理器。
func NewCompanyHandler(db *gorm.DB, authService *auth.AuthService, authHandler *AuthHandler, brnValidator brn.Validator, logger *slog.Logger) *CompanyHandler {
	return &CompanyHandler{
		db:           db,
		authService:  authService,
		authHandler:  authHandler,
		brnValidator: brnValidator,
		logger:       logger,
	}
}

type companyInfoRequest struct {
	CompanyName       string `json:"company_name" binding:"required,max=50"`
	BusinessRegNumber string `json:"business_reg_number" binding:"required,max=50"`
	OpeningDate       string `json:"opening_date" binding:"required,datetime=2006-01-02"`
	CompanyIntro      string `json:"company_intro" binding:"required"`
	CEOName           string `json:"ceo_name" binding:"required,max=50"`
	Address           string `json:"address" binding:"max=100"`
}

type registerCompanyRequest struct {
	Email        string             `json:"email" binding:"required,email,max=100"`
	Password     string             `json:"password" binding:"required,min=8,max=72"`
	ManagerName  string             `json:"manager_name" binding:"required,max=50"`
	ManagerPhone string             `json:"manager_phone" binding:"required,max=20"`
	ManagerEmail string             `json:"manager_email" binding:"omitempty,email,max=100"`
	Company      companyInfoRequest `json:"company" binding:"required"`
}

type companyInfoResponse struct {
	ID                uint   `json:"id"`
	CompanyName       string `json:"company_name"`
	BusinessRegNumber string `json:"business_reg_number"`
	OpeningDate       string `json:"opening_date"`
	CompanyIntro      string `json:"company_intro"`
	CEOName           string `json:"ceo_name"`
	Address           string `json:"address,omitempty"`
	CompanyImage      string `json:"company_image,omitempty"`
}

type companyUserResponse struct {
	ID           uint                `json:"id"`
	Email        string              `json:"email"`
	ManagerName  string              `json:"manager_name"`
	ManagerPhone string              `json:"manager_phone"`
	ManagerEmail string              `json:"manager_email,omitempty"`
	Company      companyInfoResponse `json:"company"`
	CreatedAt    time.Time           `json:"created_at"`
}

func newCompanyUserResponse(companyUser database.CompanyUser) companyUserResponse {
	return companyUserResponse{
		ID:           companyUser.ID,
		Email:        companyUser.Email,
		ManagerName:  companyUser.ManagerName,
		ManagerPhone: companyUser.ManagerPhone,
		ManagerEmail: companyUser.ManagerEmail,
		Company: companyInfoResponse{
			ID:                companyUser.Company.ID,
			CompanyName:       companyUser.Company.CompanyName,
			BusinessRegNumber: companyUser.Company.BusinessRegNumber,
			OpeningDate:       companyUser.Company.OpeningDate.Format("2006-01-02"),
			CompanyIntro:      companyUser.Company.CompanyIntro,
			CEOName:           companyUser.Company.CEOName,
			Address:           companyUser.Company.Address,
			CompanyImage:      companyUser.Company.CompanyImage,
		},
		CreatedAt: companyUser.CreatedAt,
	}
}

// Register 创建企业主体与企业账号，登记号需通过工商真伪核验。
func (h *CompanyHandler) Register(c *gin.Context) {
	var req registerCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	openingDate, err := time.Parse("2006-01-02", req.Company.OpeningDate)
	if err != nil {
		Unprocessable(c, "invalid opening date")
		return
	}

	verified, err := emailVerified(ctx, h.db, req.Email, database.UserTypeCompany)
	if err != nil {
		logger.Error("verification lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !verified {
		BadRequest(c, "email is not verified")
		return
	}

	valid, err := h.brnValidator.ValidateBusiness(ctx, req.Company.BusinessRegNumber, openingDate, req.Company.CEOName)
	if err != nil {
		logger.Error("business registry lookup failed", slog.Any("error", err))
		BadGateway(c, "business registry unavailable")
		return
	}
	if !valid {
		BadRequest(c, "business registration number could not be verified")
		return
	}

	var existingUser database.CompanyUser
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var existingCompany database.CompanyInfo
	if err := h.db.WithContext(ctx).
		Where("business_reg_number = ?", req.Company.BusinessRegNumber).
		First(&existingCompany).Error; err == nil {
		Conflict(c, "business registration number already registered")
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

	companyUser := database.CompanyUser{
		Email:        req.Email,
		PasswordHash: hashed,
		ManagerName:  req.ManagerName,
		ManagerPhone: req.ManagerPhone,
		ManagerEmail: req.ManagerEmail,
		IsActive:     true,
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company := database.CompanyInfo{
			CompanyName:       req.Company.CompanyName,
			BusinessRegNumber: req.Company.BusinessRegNumber,
			OpeningDate:       openingDate,
			CompanyIntro:      req.Company.CompanyIntro,
			CEOName:           req.Company.CEOName,
			Address:           req.Company.Address,
		}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		companyUser.CompanyID = company.ID
		return tx.Create(&companyUser).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "company already registered")
			return
		}
		logger.Error("create company failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("company registered", slog.Uint64("company_user_id", uint64(companyUser.ID)))

	created, err := h.loadCompanyUser(ctx, companyUser.ID)
	if err != nil {
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, newCompanyUserResponse(*created))
}

// Login 校验企业账号口令并返回 Token。
func (h *CompanyHandler) Login(c *gin.Context) {
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

	var companyUser database.CompanyUser
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&companyUser).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: company user not found")
			_ = h.authHandler.registerLoginFailure(ctx, req.Email)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, companyUser.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("company_user_id", uint64(companyUser.ID)))
		_ = h.authHandler.registerLoginFailure(ctx, req.Email)
		Unauthorized(c)
		return
	}

	h.authHandler.clearLoginFailures(ctx, req.Email)

	tokenPair, err := h.authService.GenerateTokenPair(companyUser.ID, database.UserTypeCompany)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.authHandler.replyWithTokenPair(c, tokenPair)
}

// Me 返回当前登录的企业账号资料。
func (h *CompanyHandler) Me(c *gin.Context) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	companyUser, err := h.loadCompanyUser(c.Request.Context(), companyUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "company user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, newCompanyUserResponse(*companyUser))
}

type updateCompanyRequest struct {
	ManagerName     *string `json:"manager_name" binding:"omitempty,max=50"`
	ManagerPhone    *string `json:"manager_phone" binding:"omitempty,max=20"`
	ManagerEmail    *string `json:"manager_email" binding:"omitempty,email,max=100"`
	CompanyIntro    *string `json:"company_intro"`
	Address         *string `json:"address" binding:"omitempty,max=100"`
	NewPassword     *string `json:"new_password" binding:"omitempty,min=8,max=72"`
	ConfirmPassword *string `json:"confirm_password"`
}

// Update 部分更新企业资料，仅限本账号。
func (h *CompanyHandler) Update(c *gin.Context) {
	var req updateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unprocessable(c, err.Error())
		return
	}

	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid company user id")
		return
	}
	if uint(targetID) != companyUserID {
		Forbidden(c, "cannot modify another company account")
		return
	}

	if req.NewPassword != nil {
		if req.ConfirmPassword == nil || *req.NewPassword != *req.ConfirmPassword {
			BadRequest(c, "password confirmation does not match")
			return
		}
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("company_user_id", uint64(companyUserID)))

	companyUser, err := h.loadCompanyUser(ctx, companyUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "company user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	userUpdates := map[string]any{}
	if req.ManagerName != nil {
		userUpdates["manager_name"] = *req.ManagerName
	}
	if req.ManagerPhone != nil {
		userUpdates["manager_phone"] = *req.ManagerPhone
	}
	if req.ManagerEmail != nil {
		userUpdates["manager_email"] = *req.ManagerEmail
	}
	if req.NewPassword != nil {
		hashed, err := h.authService.HashPassword(*req.NewPassword)
		if err != nil {
			logger.Error("hash password failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		userUpdates["password_hash"] = hashed
	}

	companyUpdates := map[string]any{}
	if req.CompanyIntro != nil {
		companyUpdates["company_intro"] = *req.CompanyIntro
	}
	if req.Address != nil {
		companyUpdates["address"] = *req.Address
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(userUpdates) > 0 {
			if err := tx.Model(&database.CompanyUser{}).
				Where("id = ?", companyUserID).
				Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		if len(companyUpdates) > 0 {
			if err := tx.Model(&database.CompanyInfo{}).
				Where("id = ?", companyUser.CompanyID).
				Updates(companyUpdates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("update company failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	updated, err := h.loadCompanyUser(ctx, companyUserID)
	if err != nil {
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, newCompanyUserResponse(*updated))
}

// Delete 删除企业账号，仅限本账号。企业主体在最后一个账号删除时一并移除。
func (h *CompanyHandler) Delete(c *gin.Context) {
	companyUserID, ok := companyUserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid company user id")
		return
	}
	if uint(targetID) != companyUserID {
		Forbidden(c, "cannot delete another company account")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("company_user_id", uint64(companyUserID)))

	companyUser, err := h.loadCompanyUser(ctx, companyUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "company user not found")
			return
		}
		Internal(c, "internal error")
		return
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&database.CompanyUser{}, companyUserID).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&database.CompanyUser{}).
			Where("company_id = ?", companyUser.CompanyID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Unscoped().Delete(&database.CompanyInfo{}, companyUser.CompanyID).Error
		}
		return nil
	})
	if err != nil {
		logger.Error("delete company failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CompanyHandler) loadCompanyUser(ctx context.Context, id uint) (*database.CompanyUser, error) {
	var companyUser database.CompanyUser
	err := h.db.WithContext(ctx).Preload("Company").First(&companyUser, id).Error
	if err != nil {
		return nil, err
	}
	return &companyUser, nil
}

func (h *CompanyHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return handlerLogger(c, h.logger)
}
