package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeVerificationEmail = "email:verification"
	TypeApplicationNotify = "application:notify"
	TypeAccountSweep      = "account:sweep"
)

// VerificationEmailPayload 描述发送邮箱验证邮件所需的信息。
type VerificationEmailPayload struct {
	Email         string `json:"email"`
	Token         string `json:"token"`
	UserType      string `json:"user_type"`
	CorrelationID string `json:"correlation_id"`
}

// NewVerificationEmailTask 构造一个验证邮件任务。
func NewVerificationEmailTask(email, token, userType, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VerificationEmailPayload{
		Email:         email,
		Token:         token,
		UserType:      userType,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerificationEmail, payload), nil
}

// ApplicationNotifyPayload 描述投递通知邮件所需的信息。
type ApplicationNotifyPayload struct {
	ApplicationID uint   `json:"application_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewApplicationNotifyTask 构造一个投递通知任务。
func NewApplicationNotifyTask(applicationID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationNotifyPayload{
		ApplicationID: applicationID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplicationNotify, payload), nil
}

// NewAccountSweepTask 构造一次未激活账号清扫任务（由调度器周期入队）。
func NewAccountSweepTask() *asynq.Task {
	return asynq.NewTask(TypeAccountSweep, nil)
}
