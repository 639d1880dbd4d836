package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"jobboard/internal/database"
)

// SweepTaskHandler 周期清理未激活账号与过期的验证记录。
type SweepTaskHandler struct {
	db          *gorm.DB
	graceWindow time.Duration
	logger      *slog.Logger
}

// NewSweepTaskHandler 创建清扫任务处理器。
func NewSweepTaskHandler(db *gorm.DB, graceWindow time.Duration, logger *slog.Logger) *SweepTaskHandler {
	return &SweepTaskHandler{
		db:          db,
		graceWindow: graceWindow,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
// 超过宽限期仍未激活的账号会被物理删除，注册邮箱随之释放。
func (h *SweepTaskHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().Add(-h.graceWindow)

	var usersDeleted, companyUsersDeleted, verificationsDeleted int64

	result := h.db.WithContext(ctx).Unscoped().
		Where("is_active = ? AND created_at < ?", false, cutoff).
		Delete(&database.User{})
	if result.Error != nil {
		h.logger.Error("sweep users failed", slog.Any("error", result.Error))
		return result.Error
	}
	usersDeleted = result.RowsAffected

	result = h.db.WithContext(ctx).Unscoped().
		Where("is_active = ? AND created_at < ?", false, cutoff).
		Delete(&database.CompanyUser{})
	if result.Error != nil {
		h.logger.Error("sweep company users failed", slog.Any("error", result.Error))
		return result.Error
	}
	companyUsersDeleted = result.RowsAffected

	result = h.db.WithContext(ctx).Unscoped().
		Where("is_verified = ? AND expires_at < ?", false, time.Now()).
		Delete(&database.EmailVerification{})
	if result.Error != nil {
		h.logger.Error("sweep verifications failed", slog.Any("error", result.Error))
		return result.Error
	}
	verificationsDeleted = result.RowsAffected

	if usersDeleted+companyUsersDeleted+verificationsDeleted > 0 {
		h.logger.Info("sweep completed",
			slog.Int64("users_deleted", usersDeleted),
			slog.Int64("company_users_deleted", companyUsersDeleted),
			slog.Int64("verifications_deleted", verificationsDeleted),
		)
	}
	return nil
}
