package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/service"
	"github.com/d60-Lab/bookstore/pkg/response"
)

type orderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

type checkoutRequest struct {
	UseUserAddress  bool   `json:"use_user_address"`
	ShippingName    string `json:"shipping_name" binding:"max=128"`
	ShippingPhone   string `json:"shipping_phone" binding:"max=32"`
	ShippingAddress string `json:"shipping_address" binding:"max=512"`
	PaymentMethod   string `json:"payment_method" binding:"omitempty,payment_method"`
}

type createOrderRequest struct {
	checkoutRequest
	Items []orderItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (r checkoutRequest) input() service.CreateOrderInput {
	in := service.CreateOrderInput{
		UseUserAddress:  r.UseUserAddress,
		ShippingName:    r.ShippingName,
		ShippingPhone:   r.ShippingPhone,
		ShippingAddress: r.ShippingAddress,
	}
	if r.PaymentMethod != "" {
		// 已由 payment_method 标签校验
		in.PaymentMethod, _ = model.ParsePaymentMethod(r.PaymentMethod)
	}
	return in
}

type statusQuery struct {
	Status string `form:"status" binding:"required,order_status"`
}

// CreateOrder 直接下单
// @Summary 创建订单
// @Description 锁定商品、扣减库存并快照价格，全部成功或全部回滚
// @Tags 订单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createOrderRequest true "订单信息"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	in := req.input()
	in.Items = make([]service.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		in.Items = append(in.Items, service.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, err := h.orders.CreateOrder(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// Checkout 以购物车下单并清空购物车
// @Summary 购物车结算
// @Tags 订单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body checkoutRequest true "收货与支付信息"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/orders/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	order, err := h.orders.CheckoutCart(c.Request.Context(), middleware.UserID(c), req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// ListMyOrders 我的订单
// @Summary 我的订单列表
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/orders [get]
func (h *Handler) ListMyOrders(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.orders.ListMyOrders(c.Request.Context(), middleware.UserID(c), q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "list": list})
}

// GetOrder 订单详情，本人或管理员可见
// @Summary 订单详情
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param id path int true "订单号"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), actor(c), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateOrderStatus 管理员修改订单状态
// @Summary 修改订单状态
// @Description 按状态迁移表校验；迁移到取消会回补库存
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param id path int true "订单号"
// @Param status query string true "目标状态" Enums(PENDING, CONFIRMED, PAYMENT_FAILED, PAID, SHIPPED, DELIVERED, CANCELLED)
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/orders/{id}/status [put]
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var q statusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, model.OrderStatus(q.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// CancelOrder 取消订单并回补库存
// @Summary 取消订单
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param id path int true "订单号"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/orders/{id}/cancel [put]
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(c.Request.Context(), actor(c), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}
