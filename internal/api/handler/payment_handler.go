package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/pkg/response"
)

type initiatePaymentRequest struct {
	OrderID int64  `json:"order_id" binding:"required,gt=0"`
	Method  string `json:"method" binding:"required,payment_method"`
}

// InitiatePayment 为订单发起支付
// @Summary 发起支付
// @Description COD 直接确认订单；网关支付返回跳转地址
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body initiatePaymentRequest true "支付信息"
// @Success 200 {object} response.Response{data=service.PaymentResult}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/payment/order [post]
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	method, _ := model.ParsePaymentMethod(req.Method)
	res, err := h.payments.InitiatePayment(c.Request.Context(), actor(c), req.OrderID, method, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// RetryPayment 重新获取网关支付地址
// @Summary 重试支付
// @Tags 支付
// @Produce json
// @Security BearerAuth
// @Param order_id path int true "订单号"
// @Success 200 {object} response.Response{data=service.PaymentResult}
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payment/retry/{order_id} [post]
func (h *Handler) RetryPayment(c *gin.Context) {
	orderID, ok := int64Param(c, "order_id")
	if !ok {
		return
	}
	res, err := h.payments.RetryPayment(c.Request.Context(), actor(c), orderID, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GatewayReturn 网关回跳：验签对账后重定向到前端
// @Summary 支付网关回调
// @Description 签名错误或金额不符时不修改任何数据
// @Tags 支付
// @Param vnp_TxnRef query string true "交易参考号"
// @Param vnp_SecureHash query string true "签名"
// @Success 302
// @Router /api/v1/payment/gateway-return [get]
func (h *Handler) GatewayReturn(c *gin.Context) {
	res, err := h.payments.HandleGatewayCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		c.Redirect(http.StatusFound, redirectURL(h.opts.FailureURL, res.OrderID, "internal_error"))
		return
	}
	if res.Outcome == gateway.OutcomeSuccess {
		c.Redirect(http.StatusFound, redirectURL(h.opts.SuccessURL, res.OrderID, ""))
		return
	}
	reason := res.Reason
	if reason == "" {
		reason = res.Outcome.String()
	}
	c.Redirect(http.StatusFound, redirectURL(h.opts.FailureURL, res.OrderID, reason))
}

func redirectURL(base string, orderID int64, reason string) string {
	q := url.Values{}
	if orderID > 0 {
		q.Set("orderId", strconv.FormatInt(orderID, 10))
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	if len(q) == 0 {
		return base
	}
	sep := "?"
	if u, err := url.Parse(base); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return base + sep + q.Encode()
}
