package service

import (
	"context"
	"escrita_backend/internal/config"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// GatewayOrder 发往支付网关的订单
type GatewayOrder struct {
	OrderID       string
	Amount        int64
	Plan          string
	CustomerName  string
	CustomerEmail string
}

type GatewayCheckout struct {
	Token       string
	RedirectURL string
}

// GatewayStatus 网关侧的交易状态
type GatewayStatus struct {
	TransactionStatus string
	FraudStatus       string
}

// PaymentGateway 支付网关，测试中可替换
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, order GatewayOrder) (*GatewayCheckout, error)
	Status(ctx context.Context, orderID string) (*GatewayStatus, error)
	Cancel(ctx context.Context, orderID string) (*GatewayStatus, error)
	Refund(ctx context.Context, orderID string, amount int64, reason string) error
}

type MidtransGateway struct {
	snap snap.Client
	core coreapi.Client
}

func NewMidtransGateway(cfg *config.PaymentConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	g := &MidtransGateway{}
	g.snap.New(cfg.ServerKey, env)
	g.core.New(cfg.ServerKey, env)
	return g
}

func (g *MidtransGateway) CreateCheckout(ctx context.Context, order GatewayOrder) (*GatewayCheckout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.OrderID,
			GrossAmt: order.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: order.CustomerName,
			Email: order.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       order.Plan,
				Name:     "Plano " + order.Plan,
				Price:    order.Amount,
				Qty:      1,
				Category: "subscription",
			},
		},
	}

	resp, merr := g.snap.CreateTransaction(req)
	if merr != nil {
		return nil, merr
	}
	return &GatewayCheckout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (g *MidtransGateway) Status(ctx context.Context, orderID string) (*GatewayStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, merr := g.core.CheckTransaction(orderID)
	if merr != nil {
		return nil, merr
	}
	return &GatewayStatus{TransactionStatus: resp.TransactionStatus, FraudStatus: resp.FraudStatus}, nil
}

func (g *MidtransGateway) Cancel(ctx context.Context, orderID string) (*GatewayStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, merr := g.core.CancelTransaction(orderID)
	if merr != nil {
		return nil, merr
	}
	return &GatewayStatus{TransactionStatus: resp.TransactionStatus}, nil
}

func (g *MidtransGateway) Refund(ctx context.Context, orderID string, amount int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, merr := g.core.RefundTransaction(orderID, &coreapi.RefundReq{
		RefundKey: orderID + "-refund",
		Amount:    amount,
		Reason:    reason,
	})
	// *midtrans.Error 为 nil 时不能直接当作 error 返回
	if merr != nil {
		return merr
	}
	return nil
}
