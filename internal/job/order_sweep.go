package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakfastledger/internal/config"
	"breakfastledger/internal/repository"
	"breakfastledger/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// OrderSweepJob 定时补偿中断的下单
//
//   - 个人/批量订单在扣款之后、结算之前中断时停留在 created，按流水补偿结算
//   - 团餐订单在扣款之后、写入之前中断时只留下孤立流水，按账户退回净扣款
//
// 重复执行结果不变：已结算的订单和已退回的来源不会再被扫描到。
type OrderSweepJob struct {
	orderRepo    *repository.OrderRepository
	orderService *service.OrderService
	classService *service.ClassOrderService
	cfg          *config.Config
	log          *log.Helper
	cron         *cron.Cron
	batchSize    int
}

func NewOrderSweepJob(db *gorm.DB, cfg *config.Config, orderService *service.OrderService, classService *service.ClassOrderService, logger log.Logger) *OrderSweepJob {
	return &OrderSweepJob{
		orderRepo:    repository.NewOrderRepository(db),
		orderService: orderService,
		classService: classService,
		cfg:          cfg,
		log:          log.NewHelper(log.With(logger, "module", "job/order_sweep")),
		cron:         cron.New(),
		batchSize:    100,
	}
}

// Start 按 business.sweep_cron 注册任务并启动调度器
func (j *OrderSweepJob) Start(ctx context.Context) error {
	spec := j.cfg.Business.SweepCron
	if spec == "" {
		spec = "@hourly"
	}
	_, err := j.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		j.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("注册补偿任务失败: %w", err)
	}
	j.cron.Start()
	j.log.Infof("[OrderSweepJob] 订单补偿任务启动: spec=%s", spec)
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (j *OrderSweepJob) Stop() context.Context {
	j.log.Info("[OrderSweepJob] 任务停止")
	return j.cron.Stop()
}

// RunOnce 执行一轮补偿，返回结算的订单数与退回的团餐来源数之和
func (j *OrderSweepJob) RunOnce(ctx context.Context) int {
	staleMinutes := j.cfg.Business.StaleOrderMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	beforeTime := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)

	settled := 0

	orders, err := j.orderRepo.GetStaleOrders(ctx, beforeTime, j.batchSize)
	if err != nil {
		j.log.Errorf("[OrderSweepJob] 查询订单失败: %v", err)
	}
	for _, order := range orders {
		err := j.orderService.ReconcileStale(ctx, order, beforeTime)
		if errors.Is(err, service.ErrOrderNotStale) {
			continue
		}
		if err != nil {
			j.log.Errorf("[OrderSweepJob] 补偿订单失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		settled++
		j.log.Infof("[OrderSweepJob] 订单已补偿: orderNo=%s, status=%s", order.OrderNo, order.Status)
	}

	reversed, err := j.classService.ReverseOrphanDebits(ctx, beforeTime, j.batchSize)
	if err != nil {
		j.log.Errorf("[OrderSweepJob] 退回孤立团餐扣款失败: %v", err)
	}
	settled += reversed

	if settled > 0 {
		j.log.Infof("[OrderSweepJob] 本次补偿 %d 个订单", settled)
	}
	return settled
}
