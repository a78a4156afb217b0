package service

import (
	"context"
	"escrita_backend/internal/config"
	"escrita_backend/pkg/logger"
	"fmt"
	"mime"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// NewEmailProvider 按 mail.provider 选择发信通道，默认只写日志
func NewEmailProvider(cfg *config.MailConfig) EmailProvider {
	switch cfg.Provider {
	case "smtp":
		return &SMTPProvider{Config: cfg}
	case "sendgrid":
		return NewSendgridProvider(cfg)
	default:
		return &LogProvider{}
	}
}

// SMTPProvider 通过 SMTP 发送
type SMTPProvider struct {
	Config *config.MailConfig
}

func (p *SMTPProvider) Send(ctx context.Context, msg *EmailMessage) error {
	addr := fmt.Sprintf("%s:%d", p.Config.SMTPHost, p.Config.SMTPPort)

	var auth smtp.Auth
	if p.Config.SMTPUser != "" {
		auth = smtp.PlainAuth("", p.Config.SMTPUser, p.Config.SMTPPassword, p.Config.SMTPHost)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, p.Config.FromAddress, []string{msg.ToEmail}, p.build(msg))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SMTPProvider) build(msg *EmailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", p.Config.FromName), p.Config.FromAddress)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", msg.ToName), msg.ToEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// SendgridProvider 通过 SendGrid v3 API 发送
type SendgridProvider struct {
	key  string
	from *sgmail.Email
}

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

func NewSendgridProvider(cfg *config.MailConfig) *SendgridProvider {
	return &SendgridProvider{
		key:  cfg.SendgridAPIKey,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

func (p *SendgridProvider) Send(ctx context.Context, msg *EmailMessage) error {
	m := sgmail.NewSingleEmail(p.from, msg.Subject, sgmail.NewEmail(msg.ToName, msg.ToEmail), "", msg.HTML)

	req := sendgrid.GetRequest(p.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogProvider 只记录日志，开发环境使用
type LogProvider struct{}

func (p *LogProvider) Send(_ context.Context, msg *EmailMessage) error {
	logger.Log.Info("Email (log provider)",
		zap.String("template", msg.Template),
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
	)
	return nil
}
