package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/auth"
	"jobboard/internal/brn"
	"jobboard/internal/config"
	"jobboard/internal/oauth"
	"jobboard/internal/posting"
	"jobboard/internal/storage"
)

// Dependencies 汇集路由注册所需的外部依赖。
type Dependencies struct {
	DB             *gorm.DB
	AsynqClient    *asynq.Client
	AuthService    *auth.AuthService
	Redis          *redis.Client
	Logger         *slog.Logger
	Storage        *storage.Client
	BRNValidator   brn.Validator
	OAuthProviders map[string]oauth.Provider
	Config         *config.Config
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	uploader := &ImageUploader{Storage: deps.Storage, ClamdAddr: deps.Config.Clamd.Addr}
	repo := posting.NewRepository(deps.DB)

	authHandler := NewAuthHandler(
		deps.DB,
		deps.AuthService,
		deps.Redis,
		deps.Logger,
		deps.Config.Auth.LoginRateLimitPerHour,
		deps.Config.Auth.LoginLockThreshold,
		deps.Config.Auth.LoginLockTTL,
	)
	userHandler := NewUserHandler(deps.DB, deps.AuthService, authHandler, deps.Logger)
	companyHandler := NewCompanyHandler(deps.DB, deps.AuthService, authHandler, deps.BRNValidator, deps.Logger)
	verificationHandler := NewVerificationHandler(deps.DB, deps.AsynqClient, deps.Logger)
	oauthHandler := NewOAuthHandler(deps.DB, deps.AuthService, authHandler, deps.OAuthProviders, deps.Logger)
	postingHandler := NewPostingHandler(deps.DB, repo, uploader, deps.Logger)
	resumeHandler := NewResumeHandler(deps.DB, uploader, deps.Logger)
	applicationHandler := NewApplicationHandler(deps.DB, deps.AsynqClient, deps.Logger)
	favoriteHandler := NewFavoriteHandler(deps.DB, deps.Logger)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, deps.Logger, deps.Config.API.AllowedOrigins)

	userAuth := middleware.AuthMiddleware(deps.AuthService)
	companyAuth := middleware.CompanyAuthMiddleware(deps.AuthService)
	optionalAuth := middleware.OptionalAuthMiddleware(deps.AuthService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		v1.POST("/email/send-verification", verificationHandler.SendVerification)
		v1.GET("/verify-email", verificationHandler.VerifyEmail)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/refresh-token", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/:provider/login", oauthHandler.Login)
		}

		userGroup := v1.Group("/user")
		{
			userGroup.POST("/register", userHandler.Register)
			userGroup.POST("/login", userHandler.Login)
			userGroup.POST("/reset-password", userHandler.ResetPassword)
			userGroup.GET("/me", userAuth, userHandler.Me)
			userGroup.GET("/recommend", userAuth, postingHandler.Recommend)
			userGroup.PATCH("/:id", userAuth, userHandler.Update)
			userGroup.DELETE("/:id", userAuth, userHandler.Delete)
		}

		companyGroup := v1.Group("/company")
		{
			companyGroup.POST("/register", companyHandler.Register)
			companyGroup.POST("/login", companyHandler.Login)
			companyGroup.GET("/me", companyAuth, companyHandler.Me)
			companyGroup.PATCH("/:id", companyAuth, companyHandler.Update)
			companyGroup.DELETE("/:id", companyAuth, companyHandler.Delete)
		}

		postingGroup := v1.Group("/posting")
		{
			postingGroup.POST("", companyAuth, postingHandler.Create)
			postingGroup.GET("", optionalAuth, postingHandler.List)
			postingGroup.GET("/search", optionalAuth, postingHandler.Search)
			postingGroup.GET("/popular", optionalAuth, postingHandler.Popular)
			postingGroup.GET("/:id", optionalAuth, postingHandler.Detail)
			postingGroup.PATCH("/:id", companyAuth, postingHandler.Update)
			postingGroup.DELETE("/:id", companyAuth, postingHandler.Delete)
		}

		resumeGroup := v1.Group("/resumes")
		resumeGroup.Use(userAuth)
		{
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("", resumeHandler.GetLatestResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PATCH("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
		}

		applicationGroup := v1.Group("/applications")
		{
			applicationGroup.POST("", userAuth, applicationHandler.Create)
			applicationGroup.GET("", userAuth, applicationHandler.ListMine)
			applicationGroup.GET("/company", companyAuth, applicationHandler.ListForCompany)
			applicationGroup.GET("/company/:id", companyAuth, applicationHandler.DetailForCompany)
			applicationGroup.PATCH("/company/:id/status", companyAuth, applicationHandler.UpdateStatus)
			applicationGroup.GET("/:job_posting_id", userAuth, applicationHandler.DetailByPosting)
			applicationGroup.DELETE("/:id", userAuth, applicationHandler.Delete)
		}

		favoriteGroup := v1.Group("/favorites")
		favoriteGroup.Use(userAuth)
		{
			favoriteGroup.POST("", favoriteHandler.Create)
			favoriteGroup.GET("", favoriteHandler.List)
			favoriteGroup.DELETE("/:job_posting_id", favoriteHandler.Delete)
		}
	}
}
