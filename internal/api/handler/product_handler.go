package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/bookstore/pkg/response"
)

type pricingRequest struct {
	Price    string `json:"price" binding:"required,numeric" example:"120000.00"`
	Discount int    `json:"discount" binding:"min=0,max=100"`
}

// GetProduct 商品详情（走缓存，不含库存）
// @Summary 商品详情
// @Tags 商品
// @Produce json
// @Param id path int true "商品ID"
// @Success 200 {object} response.Response{data=cache.ProductSnapshot}
// @Failure 404 {object} response.Response
// @Router /api/v1/products/{id} [get]
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}

// UpdatePricing 修改定价，实际售价随之重算
// @Summary 修改商品定价
// @Tags 商品
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "商品ID"
// @Param request body pricingRequest true "定价"
// @Success 200 {object} response.Response{data=model.Product}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/products/{id}/pricing [put]
func (h *Handler) UpdatePricing(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.BadRequest(c, "invalid price")
		return
	}
	p, err := h.catalog.UpdatePricing(c.Request.Context(), id, price, req.Discount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}

// Health 检查数据库与 Redis
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.opts.Pingers))
	healthy := true
	for name, ping := range h.opts.Pingers {
		if err := ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{Code: "UNAVAILABLE", Message: "dependency check failed", Data: status})
		return
	}
	response.Success(c, status)
}
