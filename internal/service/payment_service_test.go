package service

import (
	"context"
	"encoding/json"
	"escrita_backend/internal/model"
	"escrita_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notification 按订单金额签名的网关回调
func notification(t *testing.T, serverKey string, payment *model.Payment, status, fraud string) []byte {
	t.Helper()
	return signedNotification(t, serverKey, payment.OrderID, FormatAmount(payment.Amount), status, fraud)
}

func signedNotification(t *testing.T, serverKey, orderID, grossAmount, status, fraud string) []byte {
	t.Helper()
	n := MidtransNotification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       grossAmount,
		TransactionStatus: status,
		FraudStatus:       fraud,
		TransactionID:     "trx-" + orderID,
		PaymentType:       "credit_card",
	}
	n.SignatureKey = NotificationSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	return payload
}

func fixedClock(env *testEnv, now time.Time) {
	env.payment.Now = func() time.Time { return now }
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"49.90", 4990, true},
		{"49.9", 4990, true},
		{"199.90", 19990, true},
		{" 99.90 ", 9990, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-1.00", 0, false},
	}
	for _, tt := range tests {
		cents, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.cents, cents, tt.in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "49.90", FormatAmount(4990))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "199.90", FormatAmount(19990))
}

func TestMapTransactionStatus(t *testing.T) {
	tests := []struct {
		status, fraud string
		want          model.PaymentStatus
	}{
		{"capture", "accept", model.PaymentPaid},
		{"capture", "", model.PaymentPaid},
		{"capture", "challenge", ""},
		{"capture", "deny", model.PaymentFailed},
		{"settlement", "", model.PaymentPaid},
		{"SETTLEMENT", "", model.PaymentPaid},
		{"pending", "", ""},
		{"deny", "", model.PaymentFailed},
		{"failure", "", model.PaymentFailed},
		{"expire", "", model.PaymentExpired},
		{"cancel", "", model.PaymentCancelled},
		{"refund", "", model.PaymentRefunded},
		{"partial_refund", "", model.PaymentRefunded},
		{"authorize", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapTransactionStatus(tt.status, tt.fraud), "%s/%s", tt.status, tt.fraud)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(model.PaymentPending, model.PaymentPaid))
	assert.True(t, canTransition(model.PaymentPending, model.PaymentExpired))
	assert.True(t, canTransition(model.PaymentPaid, model.PaymentRefunded))
	assert.False(t, canTransition(model.PaymentPaid, model.PaymentFailed))
	assert.False(t, canTransition(model.PaymentExpired, model.PaymentPaid))
	assert.False(t, canTransition(model.PaymentPending, ""))
	assert.False(t, canTransition(model.PaymentPending, model.PaymentPending))
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "bia")
	ctx := context.Background()

	payment, err := env.payment.Checkout(ctx, user.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.EqualValues(t, 9990, payment.Amount)
	assert.Equal(t, "snap-"+payment.OrderID, payment.SnapToken)
	require.Len(t, env.gateway.checkouts, 1)
	assert.Equal(t, user.Email, env.gateway.checkouts[0].CustomerEmail)

	_, err = env.payment.Checkout(ctx, user.ID, "gold")
	assert.True(t, util.IsKind(err, util.KindValidation))

	list, err := env.payment.ListPayments(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckout_GatewayFailureMarksPaymentFailed(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "caio")
	env.gateway.err = errGatewayDown

	_, err := env.payment.Checkout(context.Background(), user.ID, "basic")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindInternal))

	var stored model.Payment
	require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, model.PaymentFailed, stored.Status)
}

func TestHandleNotification_SettlementActivatesPlan(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "dora")
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	fixedClock(env, now)

	payment, err := env.payment.Checkout(ctx, user.ID, "premium")
	require.NoError(t, err)

	updated, err := env.payment.HandleNotification(ctx, notification(t, env.cfg.Payment.ServerKey, payment, "settlement", ""))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)

	profile, err := env.user.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "premium", profile.Plan)
	require.NotNil(t, profile.PlanExpiresAt)
	assert.True(t, profile.PlanExpiresAt.Equal(now.AddDate(0, 0, 30)))

	// 重复回调只记录事件
	again, err := env.payment.HandleNotification(ctx, notification(t, env.cfg.Payment.ServerKey, payment, "settlement", ""))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, again.Status)

	events, err := env.payment.PaymentRepo.ListEvents(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	env.email.Wait()
	sent := env.provider.templates()
	count := 0
	for _, name := range sent {
		if name == TemplatePaymentConfirmed {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHandleNotification_FinalStatesDoNotChange(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "edu")
	ctx := context.Background()
	key := env.cfg.Payment.ServerKey

	payment, err := env.payment.Checkout(ctx, user.ID, "basic")
	require.NoError(t, err)

	challenged, err := env.payment.HandleNotification(ctx, notification(t, key, payment, "capture", "challenge"))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, challenged.Status)

	expired, err := env.payment.HandleNotification(ctx, notification(t, key, payment, "expire", ""))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentExpired, expired.Status)

	late, err := env.payment.HandleNotification(ctx, notification(t, key, payment, "settlement", ""))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentExpired, late.Status)

	profile, err := env.user.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Plan)
}

func TestHandleNotification_Rejections(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "fred")
	ctx := context.Background()

	payment, err := env.payment.Checkout(ctx, user.ID, "basic")
	require.NoError(t, err)

	_, err = env.payment.HandleNotification(ctx, notification(t, "wrong-key", payment, "settlement", ""))
	assert.True(t, util.IsKind(err, util.KindUnauthorized))

	_, err = env.payment.HandleNotification(ctx, []byte("{not json"))
	assert.True(t, util.IsKind(err, util.KindValidation))

	_, err = env.payment.HandleNotification(ctx, []byte(`{"order_id":"x"}`))
	assert.True(t, util.IsKind(err, util.KindValidation))

	// basic 套餐 49.90，签名正确但金额被改成 premium 的价格
	_, err = env.payment.HandleNotification(ctx, signedNotification(t, env.cfg.Payment.ServerKey, payment.OrderID, "99.90", "settlement", ""))
	assert.True(t, util.IsKind(err, util.KindValidation))

	stored, err := env.payment.PaymentRepo.FindByOrderID(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stored.Status)

	events, err := env.payment.PaymentRepo.ListEvents(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Empty(t, events)

	user, err = env.user.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, user.Plan)

	// 尾零写法不同也视为同一金额
	_, err = env.payment.HandleNotification(ctx, signedNotification(t, env.cfg.Payment.ServerKey, payment.OrderID, "49.9", "expire", ""))
	require.NoError(t, err)
	stored, err = env.payment.PaymentRepo.FindByOrderID(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentExpired, stored.Status)

	env.cfg.Payment.NotifyEnabled = false
	_, err = env.payment.HandleNotification(ctx, notification(t, env.cfg.Payment.ServerKey, payment, "settlement", ""))
	assert.True(t, util.IsKind(err, util.KindForbidden))
}

func TestHandleNotification_UnknownOrderIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.payment.HandleNotification(ctx, signedNotification(t, env.cfg.Payment.ServerKey, "missing-order", "99.90", "settlement", ""))
	require.NoError(t, err)
	assert.Nil(t, payment)

	events, err := env.payment.PaymentRepo.ListEvents(ctx, "missing-order")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRenewalExtendsActivePlan(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "gil")
	ctx := context.Background()
	key := env.cfg.Payment.ServerKey
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedClock(env, now)

	first, err := env.payment.Checkout(ctx, user.ID, "basic")
	require.NoError(t, err)
	_, err = env.payment.HandleNotification(ctx, notification(t, key, first, "settlement", ""))
	require.NoError(t, err)

	fixedClock(env, now.AddDate(0, 0, 10))
	second, err := env.payment.Checkout(ctx, user.ID, "basic")
	require.NoError(t, err)
	_, err = env.payment.HandleNotification(ctx, notification(t, key, second, "capture", "accept"))
	require.NoError(t, err)

	profile, err := env.user.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.PlanExpiresAt)
	assert.True(t, profile.PlanExpiresAt.Equal(now.AddDate(0, 0, 60)), "got %s", profile.PlanExpiresAt)
}

func TestGetPaymentRefreshesPending(t *testing.T) {
	env := newTestEnv(t)
	owner := env.student(t, "helo")
	stranger := env.student(t, "ivo")
	ctx := context.Background()

	payment, err := env.payment.Checkout(ctx, owner.ID, "basic")
	require.NoError(t, err)

	_, err = env.payment.GetPayment(ctx, stranger.ID, payment.OrderID)
	assert.True(t, util.IsKind(err, util.KindNotFound))

	stillPending, err := env.payment.GetPayment(ctx, owner.ID, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stillPending.Status)

	env.gateway.status = &GatewayStatus{TransactionStatus: "settlement"}
	paid, err := env.payment.GetPayment(ctx, owner.ID, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.Status)
}

func TestCancelAndRefund(t *testing.T) {
	env := newTestEnv(t)
	user := env.student(t, "jade")
	ctx := context.Background()
	key := env.cfg.Payment.ServerKey

	pending, err := env.payment.Checkout(ctx, user.ID, "basic")
	require.NoError(t, err)
	cancelled, err := env.payment.Cancel(ctx, user.ID, pending.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, cancelled.Status)
	assert.Equal(t, []string{pending.OrderID}, env.gateway.cancels)

	_, err = env.payment.Cancel(ctx, user.ID, pending.OrderID)
	assert.True(t, util.IsKind(err, util.KindConflict))
	_, err = env.payment.Refund(ctx, pending.OrderID, "duplicado")
	assert.True(t, util.IsKind(err, util.KindConflict))

	paid, err := env.payment.Checkout(ctx, user.ID, "enterprise")
	require.NoError(t, err)
	_, err = env.payment.HandleNotification(ctx, notification(t, key, paid, "settlement", ""))
	require.NoError(t, err)

	_, err = env.payment.Cancel(ctx, user.ID, paid.OrderID)
	assert.True(t, util.IsKind(err, util.KindConflict))

	refunded, err := env.payment.Refund(ctx, paid.OrderID, "pedido do cliente")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, refunded.Status)
	assert.Equal(t, []string{paid.OrderID}, env.gateway.refunds)

	profile, err := env.user.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Plan)
	assert.Nil(t, profile.PlanExpiresAt)
}
