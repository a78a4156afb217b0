package controller

import (
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"
	"io"

	"github.com/gin-gonic/gin"
)

const maxNotificationBody = 64 << 10

type PaymentController struct {
	PaymentService *service.PaymentService
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{PaymentService: paymentService}
}

// Checkout godoc
// @Summary 购买套餐
// @Description 创建订单并返回 Midtrans Snap 支付链接
// @Tags 支付
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CheckoutInput true "套餐"
// @Success 201 {object} util.Response{data=model.Payment}
// @Failure 400 {object} util.ErrorResponse
// @Router /api/payments/checkout [post]
func (c *PaymentController) Checkout(ctx *gin.Context) {
	var req service.CheckoutInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	payment, err := c.PaymentService.Checkout(ctx.Request.Context(), util.CurrentUserID(ctx), req.Plan)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, payment)
}

// List godoc
// @Summary 我的订单
// @Tags 支付
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Payment}
// @Router /api/payments [get]
func (c *PaymentController) List(ctx *gin.Context) {
	payments, err := c.PaymentService.ListPayments(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, payments)
}

// Get godoc
// @Summary 订单详情
// @Description 待支付订单会向网关查询最新状态
// @Tags 支付
// @Produce  json
// @Security BearerAuth
// @Param orderId path string true "订单号"
// @Success 200 {object} util.Response{data=model.Payment}
// @Failure 404 {object} util.ErrorResponse
// @Router /api/payments/{orderId} [get]
func (c *PaymentController) Get(ctx *gin.Context) {
	payment, err := c.PaymentService.GetPayment(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("orderId"))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, payment)
}

// Cancel godoc
// @Summary 取消订单
// @Tags 支付
// @Produce  json
// @Security BearerAuth
// @Param orderId path string true "订单号"
// @Success 200 {object} util.Response{data=model.Payment}
// @Failure 409 {object} util.ErrorResponse "订单不是待支付状态"
// @Router /api/payments/{orderId}/cancel [post]
func (c *PaymentController) Cancel(ctx *gin.Context) {
	payment, err := c.PaymentService.Cancel(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("orderId"))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, payment)
}

// Refund godoc
// @Summary 订单退款
// @Description 仅管理员，退款后收回套餐
// @Tags 支付
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param orderId path string true "订单号"
// @Param   body body service.RefundInput true "退款原因"
// @Success 200 {object} util.Response{data=model.Payment}
// @Failure 409 {object} util.ErrorResponse "订单未支付"
// @Router /api/payments/{orderId}/refund [post]
func (c *PaymentController) Refund(ctx *gin.Context) {
	var req service.RefundInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	payment, err := c.PaymentService.Refund(ctx.Request.Context(), ctx.Param("orderId"), req.Reason)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, payment)
}

// Notification godoc
// @Summary Midtrans 支付回调
// @Description 通过 signature_key 校验来源，未知订单只记录不报错
// @Tags 支付
// @Accept  json
// @Produce  json
// @Success 200 {object} util.Response
// @Failure 401 {object} util.ErrorResponse "签名错误"
// @Router /api/payments/notifications [post]
func (c *PaymentController) Notification(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxNotificationBody))
	if err != nil {
		util.Fail(ctx, util.NewValidationError("Invalid notification payload"))
		return
	}

	payment, err := c.PaymentService.HandleNotification(ctx.Request.Context(), body)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	if payment == nil {
		util.Success(ctx, gin.H{"status": "ignored"})
		return
	}
	util.Success(ctx, gin.H{
		"status":         "ok",
		"order_id":       payment.OrderID,
		"payment_status": payment.Status,
	})
}
