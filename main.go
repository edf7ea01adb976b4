package main

import (
	"log"
	"time"

	"buddy_sos/config"
	"buddy_sos/handler"
	"buddy_sos/middleware"
	"buddy_sos/model"
	"buddy_sos/service"
	"buddy_sos/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	// 服务端统一使用 UTC
	time.Local = time.UTC
}

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化数据库
	if err := utils.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer utils.CloseDB()

	// 建表/补列
	if err := utils.GetDB().AutoMigrate(
		&model.User{},
		&model.BuddyLink{},
		&model.BuddyPresence{},
		&model.UserSettings{},
		&model.MoodCheckin{},
		&model.SosAlert{},
		&model.SosRecipient{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	if err := utils.InitRedis(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer utils.CloseRedis()

	// 初始化认证中间件
	middleware.InitAuth(cfg.JWTSecret)

	// 创建 WebSocket Hub 并启动跨实例广播
	hub := handler.NewHub(utils.GetRedis())
	hub.StartPubSub()
	defer hub.StopPubSub()

	// 创建服务
	buddySvc := service.NewBuddyService(utils.GetDB())
	presSvc := service.NewPresenceService(utils.GetDB())
	setSvc := service.NewSettingsService(utils.GetDB())
	checkinSvc := service.NewCheckinService(utils.GetDB())
	rankSvc := service.NewRankingService(utils.GetDB())
	sosSvc := service.NewSosService(utils.GetDB(), service.SosPolicy{
		MinBuddies:             cfg.Sos.MinBuddies,
		CooldownSeconds:        cfg.Sos.CooldownSeconds,
		EscalateAfterMin:       cfg.Sos.EscalateAfterMin,
		EscalateMoreRecipients: cfg.Sos.EscalateMoreRecipients,
		DefaultRadiusKm:        cfg.Sos.DefaultRadiusKm,
		AutoSelectCap:          cfg.Sos.AutoSelectCap,
	})

	// 告警的实时推送走 Hub
	sosSvc.SetNotifier(hub)

	// 创建处理器
	buddyHandler := handler.NewBuddyHandler(buddySvc, rankSvc)
	presHandler := handler.NewPresenceHandler(presSvc)
	setHandler := handler.NewSettingsHandler(setSvc)
	checkinHandler := handler.NewCheckinHandler(checkinSvc)
	sosHandler := handler.NewSosHandler(sosSvc)

	// 创建 Gin 路由
	r := gin.Default()

	// 注册统一错误处理中间件
	r.Use(middleware.ErrorHandlerMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"status": "ok"})
	})

	// WebSocket 连接（token 认证，不走 HTTP 中间件）
	r.GET("/ws", handler.HandleWebSocket(hub))

	// HTTP API 路由组（需要认证）
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		// 信任链接
		api.POST("/buddies/invite", buddyHandler.Invite)
		api.POST("/buddies/:id/accept", buddyHandler.Accept)
		api.POST("/buddies/:id/block", buddyHandler.Block)
		api.GET("/buddies", buddyHandler.List)
		api.GET("/buddies/invites", buddyHandler.PendingInvites)
		api.GET("/buddies/nearby", buddyHandler.Nearby)

		// 在线状态与位置
		api.GET("/presence", presHandler.Get)
		api.POST("/presence", presHandler.Update)
		api.POST("/location", presHandler.UpdateLocation)

		// 个人设置
		api.GET("/settings", setHandler.Get)
		api.POST("/settings", setHandler.Update)

		// 心情打卡
		api.POST("/checkins", checkinHandler.Create)
		api.GET("/checkins", checkinHandler.ListMine)
		api.GET("/checkins/:id", checkinHandler.Get)

		// SOS 告警
		api.POST("/sos", sosHandler.Create)
		api.POST("/sos/from-checkin/:checkin_id", sosHandler.CreateFromCheckin)
		api.GET("/sos/me", sosHandler.ListMine)
		api.GET("/sos/incoming", sosHandler.Incoming)
		api.GET("/sos/:id", sosHandler.Get)
		api.POST("/sos/:id/close", sosHandler.Close)
		api.POST("/sos/:id/escalate", sosHandler.Escalate)
		api.POST("/sos/:id/respond", sosHandler.Respond)
		api.DELETE("/sos/:id", sosHandler.Delete)
	}

	// 启动服务
	log.Printf("🚀 buddy_sos service starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
