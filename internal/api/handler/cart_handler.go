package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/pkg/response"
)

type quantityQuery struct {
	Quantity int `form:"quantity" binding:"required,min=1"`
}

// GetCart 查看购物车（不存在时创建）
// @Summary 查看购物车
// @Tags 购物车
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=model.CartView}
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/cart [get]
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.GetOrCreateCart(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cart)
}

// AddCartItem 加入购物车，已存在则累加数量
// @Summary 加入购物车
// @Tags 购物车
// @Produce json
// @Security BearerAuth
// @Param product_id path int true "商品ID"
// @Param quantity query int true "数量"
// @Success 200 {object} response.Response{data=model.CartView}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/cart/items/{product_id} [post]
func (h *Handler) AddCartItem(c *gin.Context) {
	productID, ok := int64Param(c, "product_id")
	if !ok {
		return
	}
	var q quantityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), middleware.UserID(c), productID, q.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cart)
}

// SetCartItem 设置购物车行数量
// @Summary 修改购物车数量
// @Tags 购物车
// @Produce json
// @Security BearerAuth
// @Param product_id path int true "商品ID"
// @Param quantity query int true "数量"
// @Success 200 {object} response.Response{data=model.CartView}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/cart/items/{product_id} [put]
func (h *Handler) SetCartItem(c *gin.Context) {
	productID, ok := int64Param(c, "product_id")
	if !ok {
		return
	}
	var q quantityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cart, err := h.carts.SetItemQuantity(c.Request.Context(), middleware.UserID(c), productID, q.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cart)
}

// RemoveCartItem 移除购物车行；行不存在时返回原购物车
// @Summary 移除购物车商品
// @Tags 购物车
// @Produce json
// @Security BearerAuth
// @Param product_id path int true "商品ID"
// @Success 200 {object} response.Response{data=model.CartView}
// @Router /api/v1/cart/items/{product_id} [delete]
func (h *Handler) RemoveCartItem(c *gin.Context) {
	productID, ok := int64Param(c, "product_id")
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(c.Request.Context(), middleware.UserID(c), productID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cart)
}

// ClearCart 清空购物车
// @Summary 清空购物车
// @Tags 购物车
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/cart [delete]
func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), middleware.UserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
