package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	gomail "github.com/wneessen/go-mail"

	"jobboard/internal/config"
)

// Sender 发送事务性邮件。
type Sender interface {
	SendVerification(ctx context.Context, to, verifyURL string) error
	SendApplicationNotice(ctx context.Context, to, postingTitle, applicantName string) error
}

// Mailer 基于 SMTP 实现 Sender。
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer 构造 SMTP 邮件发送器。
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<p>아래 링크를 눌러 이메일 인증을 완료해 주세요.</p>
<p><a href="{{.VerifyURL}}">이메일 인증하기</a></p>
<p>링크는 30분 동안만 유효합니다.</p>
`))

var applicationTmpl = template.Must(template.New("application").Parse(`
<p><strong>{{.PostingTitle}}</strong> 공고에 새로운 지원서가 도착했습니다.</p>
<p>지원자: {{.ApplicantName}}</p>
<p>관리 페이지에서 지원 내역을 확인해 주세요.</p>
`))

// SendVerification 发送邮箱验证邮件。
func (m *Mailer) SendVerification(ctx context.Context, to, verifyURL string) error {
	var body bytes.Buffer
	if err := verificationTmpl.Execute(&body, map[string]string{"VerifyURL": verifyURL}); err != nil {
		return fmt.Errorf("render verification mail: %w", err)
	}
	return m.send(ctx, to, "이메일 인증을 완료해 주세요", body.String())
}

// SendApplicationNotice 向招聘负责人发送投递通知。
func (m *Mailer) SendApplicationNotice(ctx context.Context, to, postingTitle, applicantName string) error {
	var body bytes.Buffer
	err := applicationTmpl.Execute(&body, map[string]string{
		"PostingTitle":  postingTitle,
		"ApplicantName": applicantName,
	})
	if err != nil {
		return fmt.Errorf("render application mail: %w", err)
	}
	return m.send(ctx, to, "새로운 지원서가 도착했습니다", body.String())
}

func (m *Mailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("set mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
	}
	if m.cfg.UseSSL {
		opts = append(opts, gomail.WithSSLPort(false))
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("init smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
