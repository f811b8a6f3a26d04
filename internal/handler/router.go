package handler

import (
	"investsystem/internal/config"
	"investsystem/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, profitJob *job.DailyProfitJob) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, profitJob)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 用户相关
		user := api.Group("/user")
		{
			user.POST("/register", h.Register)
		}

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.POST("/deposit", h.Deposit)
			account.POST("/withdraw", h.Withdraw)
			account.GET("/transactions", h.ListTransactions)
		}

		// 投资相关
		api.GET("/package/list", h.ListPackages)
		investment := api.Group("/investment")
		{
			investment.POST("/open", h.OpenInvestment)
			investment.GET("/detail", h.GetInvestment)
			investment.GET("/list", h.ListInvestments)
		}

		// 团队相关
		team := api.Group("/team")
		{
			team.GET("/turnover", h.GetTurnover)
			team.GET("/rank", h.GetRank)
			team.GET("/next-rank", h.GetNextRank)
		}

		// 奖励相关
		reward := api.Group("/reward")
		{
			reward.POST("/claim", h.ClaimReward)
			reward.GET("/claimed", h.ListClaimed)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/accrual/run", h.RunAccrual)
			admin.POST("/withdrawal/reject", h.RejectWithdrawal)
			admin.GET("/outbox/failed", h.ListFailedOutbox)
			admin.POST("/outbox/requeue", h.RequeueFailedOutbox)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
