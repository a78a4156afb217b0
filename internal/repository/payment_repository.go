package repository

import (
	"context"
	"escrita_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	BaseRepository[model.Payment]
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{BaseRepository[model.Payment]{DB: db}}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return NewPaymentRepository(tx)
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.conn(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByOrderIDForUpdate 回调与查询可能并发推进同一订单，需加行锁
func (r *PaymentRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) UpdateFields(ctx context.Context, paymentID uint, fields map[string]interface{}) error {
	return r.conn(ctx).Model(&model.Payment{}).Where("id = ?", paymentID).Updates(fields).Error
}

func (r *PaymentRepository) CreateEvent(ctx context.Context, event *model.PaymentEvent) error {
	return r.conn(ctx).Create(event).Error
}

func (r *PaymentRepository) ListEvents(ctx context.Context, orderID string) ([]model.PaymentEvent, error) {
	var events []model.PaymentEvent
	err := r.conn(ctx).Where("order_id = ?", orderID).Order("received_at ASC, id ASC").Find(&events).Error
	return events, err
}
