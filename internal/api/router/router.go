package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/bookstore/docs"
	"github.com/d60-Lab/bookstore/internal/api/handler"
	"github.com/d60-Lab/bookstore/internal/api/middleware"
)

type Options struct {
	ServiceName string
	JWTSecret   string
	JWTIssuer   string
	// 网关回跳接口按 IP 限流，<= 0 不限
	GatewayRatePerSec float64
	GatewayRateBurst  int
	EnableSwagger     bool
}

// New 组装中间件与路由
func New(h *handler.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Sentry(),
		otelgin.Middleware(opts.ServiceName),
		gzip.Gzip(gzip.DefaultCompression),
	)

	r.GET("/healthz", h.Health)
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")

	// 公开接口
	v1.GET("/products/:id", h.GetProduct)
	v1.GET("/products/:id/reviews", h.ListProductReviews)
	limiter := middleware.NewIPRateLimiter(opts.GatewayRatePerSec, opts.GatewayRateBurst)
	v1.GET("/payment/gateway-return", middleware.RateLimit(limiter), h.GatewayReturn)

	auth := v1.Group("", middleware.Auth(opts.JWTSecret, opts.JWTIssuer))
	{
		auth.GET("/cart", h.GetCart)
		auth.DELETE("/cart", h.ClearCart)
		auth.POST("/cart/items/:product_id", h.AddCartItem)
		auth.PUT("/cart/items/:product_id", h.SetCartItem)
		auth.DELETE("/cart/items/:product_id", h.RemoveCartItem)

		auth.POST("/orders", h.CreateOrder)
		auth.POST("/orders/checkout", h.Checkout)
		auth.GET("/orders", h.ListMyOrders)
		auth.GET("/orders/:id", h.GetOrder)
		auth.PUT("/orders/:id/cancel", h.CancelOrder)
		auth.PUT("/orders/:id/status", middleware.RequireAdmin(), h.UpdateOrderStatus)

		auth.POST("/payment/order", h.InitiatePayment)
		auth.POST("/payment/retry/:order_id", h.RetryPayment)

		auth.POST("/reviews/orders/:order_id/products/:product_id", h.CreateReview)
	}

	admin := v1.Group("/admin", middleware.Auth(opts.JWTSecret, opts.JWTIssuer), middleware.RequireAdmin())
	{
		admin.PUT("/products/:id/pricing", h.UpdatePricing)
	}

	return r
}
