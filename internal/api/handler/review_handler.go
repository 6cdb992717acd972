package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/pkg/response"
)

type reviewQuery struct {
	Rating  int    `form:"rating" binding:"required,min=1,max=5"`
	Comment string `form:"comment" binding:"required,max=2000"`
}

// CreateReview 已送达订单内的商品才能评价，每个订单每件商品一次
// @Summary 发表评价
// @Tags 评价
// @Produce json
// @Security BearerAuth
// @Param order_id path int true "订单号"
// @Param product_id path int true "商品ID"
// @Param rating query int true "评分 1-5"
// @Param comment query string true "评价内容"
// @Success 200 {object} response.Response{data=model.Review}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reviews/orders/{order_id}/products/{product_id} [post]
func (h *Handler) CreateReview(c *gin.Context) {
	orderID, ok := int64Param(c, "order_id")
	if !ok {
		return
	}
	productID, ok := int64Param(c, "product_id")
	if !ok {
		return
	}
	var q reviewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	review, err := h.reviews.CreateReview(c.Request.Context(), middleware.UserID(c), orderID, productID, q.Rating, q.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, review)
}

// ListProductReviews 商品评价
// @Summary 商品评价列表
// @Tags 评价
// @Produce json
// @Param id path int true "商品ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/products/{id}/reviews [get]
func (h *Handler) ListProductReviews(c *gin.Context) {
	productID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.reviews.ListProductReviews(c.Request.Context(), productID, q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "list": list})
}
