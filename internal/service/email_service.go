package service

import (
	"context"
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/monitoring"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const emailSendTimeout = 30 * time.Second

// EmailMessage 渲染完成、待发送的邮件
type EmailMessage struct {
	Template string
	ToName   string
	ToEmail  string
	Subject  string
	HTML     string
}

// EmailProvider 具体的发信通道
type EmailProvider interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// EmailService 渲染模板并异步发送，发送失败只记录日志
type EmailService struct {
	Provider    EmailProvider
	AppName     string
	FrontendURL string

	enabled atomic.Bool
	wg      sync.WaitGroup
}

func NewEmailService(provider EmailProvider, cfg *config.Config) *EmailService {
	s := &EmailService{
		Provider:    provider,
		AppName:     cfg.App.Name,
		FrontendURL: cfg.App.FrontendURL,
	}
	s.enabled.Store(cfg.Mail.Enabled)
	return s
}

// SetEnabled 配置热更新时切换发信开关
func (s *EmailService) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Wait 等待所有已派发的邮件发送结束
func (s *EmailService) Wait() {
	s.wg.Wait()
}

func (s *EmailService) SendWelcome(user *model.User) {
	s.dispatch(TemplateWelcome, user, map[string]interface{}{
		"Name":        user.Name,
		"AppName":     s.AppName,
		"FrontendURL": s.FrontendURL,
	})
}

func (s *EmailService) SendSubmissionReceived(user *model.User, sub *model.WritingSubmission) {
	s.dispatch(TemplateSubmissionReceived, user, map[string]interface{}{
		"Name":  user.Name,
		"Title": sub.Title,
		"Date":  sub.CreatedAt.Format("02/01/2006"),
		"Link":  fmt.Sprintf("%s/submissions/%d", s.FrontendURL, sub.ID),
	})
}

func (s *EmailService) SendCorrectionCompleted(user *model.User, sub *model.WritingSubmission) {
	score := ""
	if sub.Score != nil {
		score = strconv.Itoa(*sub.Score)
	}
	s.dispatch(TemplateCorrectionCompleted, user, map[string]interface{}{
		"Name":  user.Name,
		"Title": sub.Title,
		"Score": score,
		"Date":  sub.UpdatedAt.Format("02/01/2006"),
		"Link":  fmt.Sprintf("%s/submissions/%d", s.FrontendURL, sub.ID),
	})
}

func (s *EmailService) SendPasswordReset(user *model.User, token string) {
	s.dispatch(TemplatePasswordReset, user, map[string]interface{}{
		"Name": user.Name,
		"Link": fmt.Sprintf("%s/reset-password/%s", s.FrontendURL, token),
	})
}

// AchievementsUnlocked 实现 AchievementNotifier
func (s *EmailService) AchievementsUnlocked(user *model.User, achievements []model.Achievement) {
	if len(achievements) == 0 {
		return
	}
	s.dispatch(TemplateAchievements, user, map[string]interface{}{
		"Name":         user.Name,
		"Achievements": achievements,
		"Link":         s.FrontendURL + "/achievements",
	})
}

// PaymentConfirmed 实现 PaymentNotifier
func (s *EmailService) PaymentConfirmed(user *model.User, payment *model.Payment, expiresAt time.Time) {
	s.dispatch(TemplatePaymentConfirmed, user, map[string]interface{}{
		"Name":      user.Name,
		"OrderID":   payment.OrderID,
		"Plan":      payment.Plan,
		"Amount":    FormatAmount(payment.Amount),
		"ExpiresAt": expiresAt.Format("02/01/2006"),
		"Link":      s.FrontendURL + "/payments",
	})
}

func (s *EmailService) dispatch(name string, user *model.User, data map[string]interface{}) {
	if !s.enabled.Load() {
		logger.Log.Debug("Mail disabled, skipping email", zap.String("template", name), zap.Uint("user_id", user.ID))
		return
	}

	html, err := renderEmail(name, data)
	if err != nil {
		logger.Log.Error("Failed to render email", zap.String("template", name), zap.Error(err))
		monitoring.EmailsSent.WithLabelValues(name, "render_error").Inc()
		return
	}

	msg := &EmailMessage{
		Template: name,
		ToName:   user.Name,
		ToEmail:  user.Email,
		Subject:  emailSubjects[name],
		HTML:     html,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("Email provider panicked",
					zap.String("template", name),
					zap.String("to", msg.ToEmail),
					zap.Any("panic", r),
				)
				monitoring.EmailsSent.WithLabelValues(name, "error").Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()

		if err := s.Provider.Send(ctx, msg); err != nil {
			logger.Log.Error("Failed to send email",
				zap.String("template", name),
				zap.String("to", msg.ToEmail),
				zap.Error(err),
			)
			monitoring.EmailsSent.WithLabelValues(name, "error").Inc()
			return
		}
		monitoring.EmailsSent.WithLabelValues(name, "ok").Inc()
	}()
}
