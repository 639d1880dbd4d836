package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/mail"
	"jobboard/internal/tasks"
)

// MailTaskHandler 负责消费邮件类任务。
type MailTaskHandler struct {
	db          *gorm.DB
	mailer      mail.Sender
	redisClient *redis.Client
	logger      *slog.Logger
	siteURL     string
}

// NewMailTaskHandler 创建邮件任务处理器。
func NewMailTaskHandler(db *gorm.DB, mailer mail.Sender, redisClient *redis.Client, logger *slog.Logger, siteURL string) *MailTaskHandler {
	return &MailTaskHandler{
		db:          db,
		mailer:      mailer,
		redisClient: redisClient,
		logger:      logger,
		siteURL:     strings.TrimRight(strings.TrimSpace(siteURL), "/"),
	}
}

// HandleVerificationEmail 发送邮箱验证邮件。
func (h *MailTaskHandler) HandleVerificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload tasks.VerificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("email", payload.Email),
	)

	verifyURL := fmt.Sprintf("%s/v1/verify-email?token=%s", h.siteURL, url.QueryEscape(payload.Token))
	if err := h.mailer.SendVerification(ctx, payload.Email, verifyURL); err != nil {
		log.Error("send verification mail failed", slog.Any("error", err))
		return err
	}

	log.Info("verification mail sent")
	return nil
}

// HandleApplicationNotify 向岗位负责人发送投递通知邮件，
// 并把事件推送到企业端的实时通知频道。
func (h *MailTaskHandler) HandleApplicationNotify(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.ApplicationNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("application_id", uint64(payload.ApplicationID)),
	)

	var app database.JobApplication
	err := h.db.WithContext(ctx).
		Preload("JobPosting").
		Preload("JobPosting.Author").
		Preload("User").
		First(&app, payload.ApplicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("application not found, skipping task")
			return nil
		}
		log.Error("query application failed", slog.Any("error", err))
		return err
	}

	author := app.JobPosting.Author
	notify := ApplicationReceivedNotifyMessage{
		Type:          "application.received",
		ApplicationID: app.ID,
		JobPostingID:  app.JobPostingID,
		PostingTitle:  app.JobPosting.Title,
		ApplicantName: app.User.Name,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify.ErrorCode = errcode.SystemError
		notify.ErrorMessage = strings.TrimSpace(retErr.Error())
		if err := h.publishCompanyNotify(ctx, author.ID, notify); err != nil {
			log.Error("publish notify failure message failed", slog.Any("error", err))
		}
	}()

	recipient := author.ManagerEmail
	if recipient == "" {
		recipient = author.Email
	}
	if err := h.mailer.SendApplicationNotice(ctx, recipient, app.JobPosting.Title, app.User.Name); err != nil {
		log.Error("send application notice failed", slog.Any("error", err))
		return err
	}

	if err := h.publishCompanyNotify(ctx, author.ID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("application notice delivered", slog.Uint64("company_user_id", uint64(author.ID)))
	return nil
}

func (h *MailTaskHandler) publishCompanyNotify(ctx context.Context, companyUserID uint, notify ApplicationReceivedNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("company_notify:%d", companyUserID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
