package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/monitoring"
	"escrita_backend/pkg/tracing"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ProviderMidtrans = "midtrans"

// Plans 套餐价格，单位为分
var Plans = map[string]int64{
	"basic":      4990,
	"premium":    9990,
	"enterprise": 19990,
}

// FormatAmount 4990 -> "49.90"
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// ParseAmount 网关金额字符串转为分，"99.9" 与 "99.90" 等价
func ParseAmount(amount string) (int64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return int64(math.Round(v * 100)), true
}

// PaymentNotifier 支付成功后的通知
type PaymentNotifier interface {
	PaymentConfirmed(user *model.User, payment *model.Payment, expiresAt time.Time)
}

type PaymentService struct {
	DB          *gorm.DB
	PaymentRepo *repository.PaymentRepository
	UserRepo    *repository.UserRepository
	Gateway     PaymentGateway
	Notifier    PaymentNotifier
	Cfg         *config.PaymentConfig

	Now func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	userRepo *repository.UserRepository,
	gateway PaymentGateway,
	notifier PaymentNotifier,
	cfg *config.PaymentConfig,
) *PaymentService {
	return &PaymentService{
		DB:          db,
		PaymentRepo: paymentRepo,
		UserRepo:    userRepo,
		Gateway:     gateway,
		Notifier:    notifier,
		Cfg:         cfg,
		Now:         time.Now,
	}
}

type CheckoutInput struct {
	Plan string `json:"plan" binding:"required,oneof=basic premium enterprise"`
}

func (s *PaymentService) Checkout(ctx context.Context, userID uint, plan string) (payment *model.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "PaymentService.Checkout",
		attribute.Int64("user.id", int64(userID)),
		attribute.String("payment.plan", plan),
	)
	defer func() { tracing.EndSpan(span, err) }()

	amount, ok := Plans[plan]
	if !ok {
		return nil, util.NewValidationError("Validation failed", util.FieldError{Field: "plan", Message: "must be one of basic premium enterprise"})
	}

	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, s.internal("could not start checkout", err, zap.Uint("user_id", userID))
	}

	payment = &model.Payment{
		UserID:  userID,
		OrderID: model.GenerateUUID(),
		Plan:    plan,
		Amount:  amount,
		Status:  model.PaymentPending,
	}
	if err := s.PaymentRepo.Create(ctx, payment); err != nil {
		return nil, s.internal("could not start checkout", err, zap.Uint("user_id", userID))
	}

	checkout, err := s.Gateway.CreateCheckout(ctx, GatewayOrder{
		OrderID:       payment.OrderID,
		Amount:        amount,
		Plan:          plan,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
	})
	if err != nil {
		if uerr := s.PaymentRepo.UpdateFields(ctx, payment.ID, map[string]interface{}{"status": model.PaymentFailed}); uerr != nil {
			logger.Log.Warn("Failed to mark payment as failed", zap.String("order_id", payment.OrderID), zap.Error(uerr))
		}
		return nil, s.internal("payment gateway unavailable", err, zap.String("order_id", payment.OrderID))
	}

	payment.SnapToken = checkout.Token
	payment.RedirectURL = checkout.RedirectURL
	if err := s.PaymentRepo.UpdateFields(ctx, payment.ID, map[string]interface{}{
		"snap_token":   checkout.Token,
		"redirect_url": checkout.RedirectURL,
	}); err != nil {
		return nil, s.internal("could not start checkout", err, zap.String("order_id", payment.OrderID))
	}

	logger.Log.Info("Checkout created",
		zap.Uint("user_id", userID),
		zap.String("order_id", payment.OrderID),
		zap.String("plan", plan),
	)
	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, userID uint) ([]model.Payment, error) {
	payments, err := s.PaymentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("could not list payments", err, zap.Uint("user_id", userID))
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	return payments, nil
}

// owned 只有付款人能看到自己的订单
func (s *PaymentService) owned(ctx context.Context, userID uint, orderID string) (*model.Payment, error) {
	payment, err := s.PaymentRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Payment %s not found", orderID)
		}
		return nil, s.internal("could not load payment", err, zap.String("order_id", orderID))
	}
	if payment.UserID != userID {
		return nil, util.NotFoundf("Payment %s not found", orderID)
	}
	return payment, nil
}

// GetPayment 待支付的订单会先向网关查询最新状态，查询失败时返回本地记录
func (s *PaymentService) GetPayment(ctx context.Context, userID uint, orderID string) (*model.Payment, error) {
	payment, err := s.owned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentPending {
		return payment, nil
	}

	status, err := s.Gateway.Status(ctx, orderID)
	if err != nil {
		logger.Log.Warn("Failed to refresh payment status", zap.String("order_id", orderID), zap.Error(err))
		return payment, nil
	}
	updated, err := s.applyStatus(ctx, orderID, status.TransactionStatus, status.FraudStatus, nil)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PaymentService) Cancel(ctx context.Context, userID uint, orderID string) (*model.Payment, error) {
	payment, err := s.owned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentPending {
		return nil, util.NewConflictError("Only pending payments can be cancelled")
	}

	if _, err := s.Gateway.Cancel(ctx, orderID); err != nil {
		return nil, s.internal("payment gateway unavailable", err, zap.String("order_id", orderID))
	}
	return s.applyStatus(ctx, orderID, "cancel", "", nil)
}

type RefundInput struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// Refund 管理员退款，退款后收回套餐
func (s *PaymentService) Refund(ctx context.Context, orderID, reason string) (*model.Payment, error) {
	payment, err := s.PaymentRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Payment %s not found", orderID)
		}
		return nil, s.internal("could not load payment", err, zap.String("order_id", orderID))
	}
	if payment.Status != model.PaymentPaid {
		return nil, util.NewConflictError("Only paid payments can be refunded")
	}

	if err := s.Gateway.Refund(ctx, orderID, payment.Amount, reason); err != nil {
		return nil, s.internal("payment gateway unavailable", err, zap.String("order_id", orderID))
	}
	return s.applyStatus(ctx, orderID, "refund", "", nil)
}

// MidtransNotification 网关回调中用到的字段
type MidtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
}

// NotificationSignature sha512(order_id + status_code + gross_amount + server_key)
func NotificationSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// HandleNotification 校验签名、记录回调原文并推进订单状态。
// 订单不存在时只记录事件，返回 nil payment。
func (s *PaymentService) HandleNotification(ctx context.Context, payload []byte) (payment *model.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "PaymentService.HandleNotification")
	defer func() { tracing.EndSpan(span, err) }()

	if !s.Cfg.NotifyEnabled {
		return nil, util.NewForbiddenError("Payment notifications are disabled")
	}

	var notif MidtransNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, util.NewValidationError("Invalid notification payload")
	}
	if notif.OrderID == "" || notif.SignatureKey == "" {
		return nil, util.NewValidationError("Invalid notification payload")
	}

	want := NotificationSignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, s.Cfg.ServerKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(notif.SignatureKey)), []byte(want)) != 1 {
		logger.Log.Warn("Rejected payment notification", zap.String("order_id", notif.OrderID))
		monitoring.PaymentNotifications.WithLabelValues("invalid_signature").Inc()
		return nil, util.NewUnauthorizedError("Invalid signature")
	}
	monitoring.PaymentNotifications.WithLabelValues(strings.ToLower(notif.TransactionStatus)).Inc()

	event := &model.PaymentEvent{
		OrderID:           notif.OrderID,
		Provider:          ProviderMidtrans,
		TransactionStatus: notif.TransactionStatus,
		FraudStatus:       notif.FraudStatus,
		Payload:           datatypes.JSON(payload),
		ReceivedAt:        s.Now(),
	}

	// 签名只证明来源，金额还要和本地订单一致
	existing, err := s.PaymentRepo.FindByOrderID(ctx, notif.OrderID)
	switch {
	case err == nil:
		if cents, ok := ParseAmount(notif.GrossAmount); !ok || cents != existing.Amount {
			logger.Log.Warn("Payment notification amount mismatch",
				zap.String("order_id", notif.OrderID),
				zap.String("gross_amount", notif.GrossAmount),
				zap.String("expected", FormatAmount(existing.Amount)),
			)
			monitoring.PaymentNotifications.WithLabelValues("amount_mismatch").Inc()
			return nil, util.NewValidationError("Notification amount does not match order",
				util.FieldError{Field: "gross_amount", Message: "must equal " + FormatAmount(existing.Amount)})
		}
	case !repository.IsNotFound(err):
		return nil, s.internal("could not load payment", err, zap.String("order_id", notif.OrderID))
	}

	payment, err = s.applyStatus(ctx, notif.OrderID, notif.TransactionStatus, notif.FraudStatus, event)
	if err != nil {
		if util.IsKind(err, util.KindNotFound) {
			if cerr := s.PaymentRepo.CreateEvent(ctx, event); cerr != nil {
				return nil, s.internal("could not record notification", cerr, zap.String("order_id", notif.OrderID))
			}
			logger.Log.Warn("Notification for unknown order", zap.String("order_id", notif.OrderID))
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// MapTransactionStatus 网关状态映射为订单状态，空串表示不变
func MapTransactionStatus(transactionStatus, fraudStatus string) model.PaymentStatus {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return model.PaymentPaid
		case "challenge":
			return ""
		}
		return model.PaymentFailed
	case "settlement":
		return model.PaymentPaid
	case "deny", "failure":
		return model.PaymentFailed
	case "expire":
		return model.PaymentExpired
	case "cancel":
		return model.PaymentCancelled
	case "refund", "partial_refund":
		return model.PaymentRefunded
	}
	return ""
}

// canTransition 终态不变，已支付只能转为退款
func canTransition(from, to model.PaymentStatus) bool {
	if to == "" || from == to {
		return false
	}
	switch from {
	case model.PaymentPending:
		return true
	case model.PaymentPaid:
		return to == model.PaymentRefunded
	}
	return false
}

// applyStatus 在事务内锁定订单并推进状态，支付成功时开通套餐
func (s *PaymentService) applyStatus(ctx context.Context, orderID, transactionStatus, fraudStatus string, event *model.PaymentEvent) (*model.Payment, error) {
	var (
		payment   *model.Payment
		activated *time.Time
	)
	now := s.Now()
	target := MapTransactionStatus(transactionStatus, fraudStatus)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.PaymentRepo.WithTx(tx)

		var err error
		payment, err = repo.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			if repository.IsNotFound(err) {
				return util.NotFoundf("Payment %s not found", orderID)
			}
			return err
		}
		if event != nil {
			if err := repo.CreateEvent(ctx, event); err != nil {
				return err
			}
		}
		if !canTransition(payment.Status, target) {
			return nil
		}

		fields := map[string]interface{}{"status": target}
		users := s.UserRepo.WithTx(tx)
		switch target {
		case model.PaymentPaid:
			fields["paid_at"] = now
			payment.PaidAt = &now

			user, err := users.FindByID(ctx, payment.UserID)
			if err != nil {
				return err
			}
			expiresAt := planExpiry(user, payment.Plan, now, s.Cfg.PlanDays)
			if err := users.ActivatePlan(ctx, payment.UserID, payment.Plan, expiresAt); err != nil {
				return err
			}
			activated = &expiresAt
		case model.PaymentRefunded:
			if payment.Status == model.PaymentPaid {
				if err := users.UpdateFields(ctx, payment.UserID, map[string]interface{}{
					"plan":            "",
					"plan_expires_at": nil,
				}); err != nil {
					return err
				}
			}
		}

		payment.Status = target
		return repo.UpdateFields(ctx, payment.ID, fields)
	})
	if err != nil {
		if appErr, ok := util.AsAppError(err); ok && appErr.Kind != util.KindInternal {
			return nil, err
		}
		return nil, s.internal("could not update payment", err, zap.String("order_id", orderID))
	}

	if activated != nil {
		logger.Log.Info("Plan activated",
			zap.Uint("user_id", payment.UserID),
			zap.String("plan", payment.Plan),
			zap.Time("expires_at", *activated),
		)
		s.notifyPaid(ctx, payment, *activated)
	}
	return payment, nil
}

// planExpiry 同一套餐未过期时在原有效期上续期
func planExpiry(user *model.User, plan string, now time.Time, days int) time.Time {
	if days <= 0 {
		days = 30
	}
	start := now
	if user.Plan == plan && user.PlanExpiresAt != nil && user.PlanExpiresAt.After(now) {
		start = *user.PlanExpiresAt
	}
	return start.AddDate(0, 0, days)
}

func (s *PaymentService) notifyPaid(ctx context.Context, payment *model.Payment, expiresAt time.Time) {
	if s.Notifier == nil {
		return
	}
	user, err := s.UserRepo.FindByID(ctx, payment.UserID)
	if err != nil {
		logger.Log.Warn("Could not load user for email", zap.Uint("user_id", payment.UserID), zap.Error(err))
		return
	}
	s.Notifier.PaymentConfirmed(user, payment, expiresAt)
}

func (s *PaymentService) internal(msg string, err error, fields ...zap.Field) error {
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	if appErr, ok := util.AsAppError(err); ok && appErr.Kind == util.KindInternal {
		return appErr
	}
	return util.NewInternalError(msg, err)
}
