package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// swagger:model Payment
type Payment struct {
	BaseModel
	UserID      uint          `gorm:"index;not null" json:"user_id"`
	OrderID     string        `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	Plan        string        `gorm:"size:20;not null" json:"plan"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Status      PaymentStatus `gorm:"size:20;default:'pending';index" json:"status"`
	SnapToken   string        `gorm:"size:255" json:"snap_token,omitempty"`
	RedirectURL string        `gorm:"size:512" json:"redirect_url,omitempty"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsFinal 终态不再随网关回调变化
func (p *Payment) IsFinal() bool {
	switch p.Status {
	case PaymentFailed, PaymentExpired, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// PaymentEvent 网关回调原文，只追加
type PaymentEvent struct {
	ID                uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID           string         `gorm:"size:64;index;not null" json:"order_id"`
	Provider          string         `gorm:"size:30;not null" json:"provider"`
	TransactionStatus string         `gorm:"size:30" json:"transaction_status"`
	FraudStatus       string         `gorm:"size:30" json:"fraud_status"`
	Payload           datatypes.JSON `json:"payload"`
	ReceivedAt        time.Time      `gorm:"index" json:"received_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
