package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, logger log.Logger, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware())
	{
		account := api.Group("/account")
		{
			account.GET("/me", h.GetMyAccount)
			account.GET("/:id/transactions", h.ListTransactions)
		}

		api.GET("/notifications", h.ListNotifications)

		order := api.Group("/orders")
		{
			order.POST("", h.CreateOrder)
			order.GET("", h.ListOrders)
			order.GET("/:id", h.GetOrder)
		}

		api.POST("/class-orders", h.CreateGroupOrder)
		api.POST("/recharge-requests", h.SubmitRecharge)

		admin := api.Group("/admin")
		admin.Use(AdminMiddleware())
		{
			admin.GET("/recharge-requests", h.ListRechargeRequests)
			admin.POST("/recharge-requests/:id/review", h.ReviewRecharge)
			admin.POST("/batch-orders", h.CreateBatchOrder)
			admin.POST("/users/:id/transactions", h.PostAdjustment)
			admin.PUT("/transactions/:id", h.AmendTransaction)
			admin.DELETE("/transactions/:id", h.DeleteTransaction)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
