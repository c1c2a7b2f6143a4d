// Package main 是应用程序入口
package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/cache"
	"github.com/dumeirei/housing-visit-backend/internal/common/config"
	"github.com/dumeirei/housing-visit-backend/internal/common/jwt"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	commonMiddleware "github.com/dumeirei/housing-visit-backend/internal/common/middleware"
	bookingHandler "github.com/dumeirei/housing-visit-backend/internal/handler/booking"
	visitHandler "github.com/dumeirei/housing-visit-backend/internal/handler/visit"
	"github.com/dumeirei/housing-visit-backend/internal/middleware"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/scheduler"
	bookingService "github.com/dumeirei/housing-visit-backend/internal/service/booking"
	"github.com/dumeirei/housing-visit-backend/internal/service/inventory"
	"github.com/dumeirei/housing-visit-backend/internal/service/notify"
	"github.com/dumeirei/housing-visit-backend/internal/service/referral"
	visitService "github.com/dumeirei/housing-visit-backend/internal/service/visit"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
	"github.com/dumeirei/housing-visit-backend/pkg/mqtt"
	"github.com/dumeirei/housing-visit-backend/pkg/sms"
)

// 下单限流：每个用户每分钟最多提交次数
const (
	bookingRateLimit  = 10
	bookingRateWindow = time.Minute
)

// app 服务组装结果
type app struct {
	jwtManager *jwt.Manager
	visit      *visitService.VisitService
	booking    *bookingService.BookingService
	lifecycle  *bookingService.LifecycleService
	tasks      *scheduler.TaskHandler
}

// newApp 初始化仓储与服务
func newApp(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	publisher kafka.Publisher,
	push mqtt.Publisher,
	smsSender sms.Sender,
) *app {
	// 创建 JWT 管理器
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:           cfg.JWT.Secret,
		AccessExpireTime: cfg.JWT.AccessTokenDuration(),
		Issuer:           cfg.JWT.Issuer,
	})

	// 初始化仓储
	userRepo := repository.NewUserRepository(db)
	propertyRepo := repository.NewPropertyRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	store := cache.NewStore(redisClient)
	ledger := inventory.NewGormLedger(db)
	notifier := notify.NewNotifier(smsSender, push, cfg.MQTT.TopicPrefix)
	business := cfg.Business

	// 初始化服务
	visitSvc := visitService.NewVisitService(db, visitRepo, propertyRepo, userRepo, notifier, visitService.Options{
		BookingWindow:          business.Visit.BookingWindow(),
		ExpireCompletedEnabled: business.Visit.ExpireCompletedEnabled,
	})

	bookingSvc := bookingService.NewBookingService(
		db,
		visitRepo,
		bookingRepo,
		roomRepo,
		userRepo,
		ledger,
		referral.NewCouponService(userRepo, business.Referral.DiscountAmount),
		publisher,
		notifier,
		bookingService.Options{
			BookingWindow: business.Visit.BookingWindow(),
			EventTopic:    cfg.Kafka.BookingTopic,
		},
	)

	lifecycleSvc := bookingService.NewLifecycleService(
		db,
		bookingRepo,
		propertyRepo,
		userRepo,
		ledger,
		store,
		publisher,
		notifier,
		bookingService.LifecycleOptions{
			ValidityDays: business.Booking.ValidityDays,
			Location:     business.Booking.Location(),
			CacheTTL:     time.Duration(business.Cache.ValidityTTL) * time.Second,
			EventTopic:   cfg.Kafka.BookingTopic,
			QRCodeSize:   business.Booking.QRCodeSize,
		},
	)

	lockTTL := time.Duration(business.Booking.SweepInterval) * time.Second

	return &app{
		jwtManager: jwtManager,
		visit:      visitSvc,
		booking:    bookingSvc,
		lifecycle:  lifecycleSvc,
		tasks:      scheduler.NewTaskHandler(lifecycleSvc, visitSvc, store, lockTTL),
	}
}

// setupRouter 设置路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
	a *app,
	m *metrics.Metrics,
) {
	// 初始化处理器
	visitH := visitHandler.NewHandler(a.visit)
	bookingH := bookingHandler.NewHandler(a.booking, a.lifecycle)
	opLogger := commonMiddleware.NewOperationLogger(log)

	// 全局中间件
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Logging(&middleware.LoggingConfig{
		Logger:    log,
		SkipPaths: []string{"/health", "/ready", cfg.Metrics.Path},
	}))
	if cfg.Tracing.Enabled {
		r.Use(commonMiddleware.Tracing(&commonMiddleware.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/ready", cfg.Metrics.Path},
		}))
		r.Use(commonMiddleware.InjectTraceContext())
	}
	if cfg.Metrics.Enabled {
		r.Use(m.Middleware())
		r.GET(cfg.Metrics.Path, m.Handler())
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	// API v1 路由组，全部需要认证
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(a.jwtManager), opLogger.Log())
	{
		visits := v1.Group("/visits")
		{
			visits.POST("", visitH.CreateVisit)
			visits.GET("", visitH.ListVisits)
			visits.GET("/:id", visitH.GetVisit)
			visits.PATCH("/:id/status", visitH.UpdateStatus)
			visits.PATCH("/:id/assign", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), visitH.AssignEmployee)
		}

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", middleware.UserRateLimit(redisClient, "booking", bookingRateLimit, bookingRateWindow), bookingH.CreateBooking)
			bookings.GET("", bookingH.ListBookings)
			scanner := middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RolePropertyOwner)
			bookings.GET("/scan", scanner, bookingH.Scan)
			bookings.GET("/scanner/:id", scanner, bookingH.GetForScanner)
			bookings.GET("/:id", bookingH.GetBooking)
			bookings.PATCH("/:id/activate", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), bookingH.Activate)
			bookings.PATCH("/:id/cancel", bookingH.Cancel)
			bookings.GET("/:id/validity", middleware.NoCache(), bookingH.GetValidity)
			bookings.GET("/:id/qrcode", bookingH.QRCode)
		}
	}
}
