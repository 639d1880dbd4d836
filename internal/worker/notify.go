package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给企业端）。
// 注意：这里的字段名与前端解析保持一致。
type ApplicationReceivedNotifyMessage struct {
	Type          string `json:"type"`
	ApplicationID uint   `json:"application_id"`
	JobPostingID  uint   `json:"job_posting_id"`
	PostingTitle  string `json:"posting_title"`
	ApplicantName string `json:"applicant_name"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}
