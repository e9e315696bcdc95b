package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakfastledger/internal/config"
	"breakfastledger/internal/handler"
	"breakfastledger/internal/infrastructure/cache"
	"breakfastledger/internal/infrastructure/database"
	"breakfastledger/internal/infrastructure/lock"
	"breakfastledger/internal/infrastructure/logger"
	"breakfastledger/internal/infrastructure/mq"
	"breakfastledger/internal/job"
	"breakfastledger/pkg/idgen"

	"github.com/go-kratos/kratos/v2/log"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
	workerID int64
)

func init() {
	flag.StringVar(&flagconf, "conf", "config/config.yaml", "config path, eg: -conf config.yaml")
	flag.Int64Var(&workerID, "worker", 1, "snowflake worker id (0-1023)")
}

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(flagconf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	baseLogger := logger.New(cfg.Log.Level)
	logHelper := log.NewHelper(baseLogger)

	// 初始化 ID 生成器
	idgen.Init(workerID)

	// 初始化数据库
	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logHelper.Fatalf("初始化数据库失败: %v", err)
	}
	logHelper.Infof("数据库连接成功: driver=%s", cfg.Database.Driver)

	// 账户锁
	var locker lock.AccountLocker
	switch cfg.Lock.Driver {
	case "redis":
		redisClient, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			logHelper.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Lock.TTL, cfg.Lock.RetryInterval, cfg.Lock.MaxRetries)
	case "none":
		locker = lock.NopLocker{}
	default:
		locker = lock.NewMemoryLocker()
	}
	logHelper.Infof("账户锁: driver=%s", cfg.Lock.Driver)

	// 消息发布
	var publisher mq.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			logHelper.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		publisher = mq.NewLogPublisher(baseLogger)
	}

	services := handler.BuildServices(db, cfg, locker, baseLogger)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg, baseLogger)
	go outboxSender.Start(ctx)

	sweepJob := job.NewOrderSweepJob(db, cfg, services.Order, services.ClassOrder, baseLogger)
	if err := sweepJob.Start(ctx); err != nil {
		logHelper.Fatalf("启动补偿任务失败: %v", err)
	}

	// 设置路由
	router := handler.SetupRouter(handler.NewHandler(services, baseLogger), baseLogger, cfg.Server.Mode)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logHelper.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logHelper.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logHelper.Errorf("服务关闭异常: %v", err)
	}

	// 先停 HTTP 再停后台任务
	cancel()
	select {
	case <-sweepJob.Stop().Done():
	case <-shutdownCtx.Done():
		logHelper.Warn("补偿任务未在超时前结束")
	}

	logHelper.Info("服务已关闭")
}
