// Package main 是应用程序入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/housing-visit-backend/internal/common/cache"
	"github.com/dumeirei/housing-visit-backend/internal/common/config"
	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/common/tracing"
	"github.com/dumeirei/housing-visit-backend/internal/scheduler"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
	"github.com/dumeirei/housing-visit-backend/pkg/mqtt"
	"github.com/dumeirei/housing-visit-backend/pkg/sms"
)

const version = "1.0.0"

func main() {
	// 加载配置
	cfg, err := config.Load(os.Getenv("HOUSING_CONFIG"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()

	log.Info("Starting Housing Visit Backend",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
	)

	// 初始化链路追踪
	tracer, err := tracing.Init(&tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Mode,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 初始化监控指标
	m := metrics.Init(cfg.Metrics.Namespace)

	// 初始化数据库连接
	db, err := database.Init(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis 连接
	redisClient, err := cache.Init(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connected successfully")

	// 领域事件发布
	var publisher kafka.Publisher = kafka.NopPublisher{}
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(&kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			WriteTimeout: time.Duration(cfg.Kafka.WriteTimeout) * time.Second,
		}, log.Named("kafka"))
		if err != nil {
			log.Fatal("Failed to create kafka producer", zap.Error(err))
		}
		publisher = producer
		log.Info("Kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	// 员工 App 推送
	var push mqtt.Publisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(&mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       fmt.Sprintf("%s%d", cfg.MQTT.ClientIDPrefix, os.Getpid()),
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			AutoReconnect:  cfg.MQTT.AutoReconnect,
		}, log.Named("mqtt"))
		if err := mqttClient.Connect(); err != nil {
			// 推送失败不影响主流程
			log.Warn("Failed to connect MQTT broker", zap.Error(err))
		}
		push = mqttClient
	}

	// 短信
	var smsSender sms.Sender = sms.NewMockSender()
	if cfg.SMS.Provider == "aliyun" {
		smsSender, err = sms.NewAliyunSender(&sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			RegionID:        cfg.SMS.RegionID,
			Templates:       cfg.SMS.Templates,
		})
		if err != nil {
			log.Fatal("Failed to create sms sender", zap.Error(err))
		}
	}

	// 设置 Gin 模式
	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Server.Mode == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	app := newApp(cfg, db, redisClient, publisher, push, smsSender)

	// 启动定时任务
	sched := scheduler.NewScheduler()
	app.tasks.Register(sched,
		time.Duration(cfg.Business.Booking.SweepInterval)*time.Second,
		time.Duration(cfg.Business.Visit.ExpireCheckInterval)*time.Second,
	)
	sched.Start()

	// 创建 Gin 引擎
	engine := gin.New()

	// 设置路由
	setupRouter(engine, cfg, log, db, redisClient, app, m)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("HTTP server starting",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// 创建超时上下文用于优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	sched.Stop()

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("Failed to close kafka producer", zap.Error(err))
		}
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.Error("Failed to shutdown tracer", zap.Error(err))
	}

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		log.Error("Failed to close database", zap.Error(err))
	}
	if err := cache.Close(); err != nil {
		log.Error("Failed to close redis", zap.Error(err))
	}

	log.Info("Server exited")
}
