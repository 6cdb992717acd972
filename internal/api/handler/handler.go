package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/internal/service"
	"github.com/d60-Lab/bookstore/pkg/response"
)

// Pinger 健康检查依赖项
type Pinger func(ctx context.Context) error

// Options 非服务类的依赖
type Options struct {
	// 网关回跳后重定向到前端的地址
	SuccessURL string
	FailureURL string
	Pingers    map[string]Pinger
}

type Handler struct {
	carts    service.CartService
	orders   service.OrderService
	payments service.PaymentService
	reviews  service.ReviewService
	catalog  service.CatalogService
	opts     Options
}

func NewHandler(
	carts service.CartService,
	orders service.OrderService,
	payments service.PaymentService,
	reviews service.ReviewService,
	catalog service.CatalogService,
	opts Options,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		payments: payments,
		reviews:  reviews,
		catalog:  catalog,
		opts:     opts,
	}
}

func actor(c *gin.Context) service.Actor {
	return service.Actor{UserID: middleware.UserID(c), Role: middleware.Role(c)}
}

// int64Param 解析正整数路径参数，失败时已写入 400
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

type pageQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=10" binding:"min=1,max=100"`
}
