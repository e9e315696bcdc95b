package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerMetrics 早餐账本服务指标
type LedgerMetrics struct {
	// 账本操作
	LedgerOpsTotal   *prometheus.CounterVec   // 账本操作总数（按操作、结果）
	LedgerOpDuration *prometheus.HistogramVec // 账本操作耗时
	RiskEventsTotal  *prometheus.CounterVec   // 风险事件数（按类型）
	LockAcquireTotal *prometheus.CounterVec   // 账户锁获取（按结果）

	// 订单与充值
	OrdersTotal          *prometheus.CounterVec // 订单数（按类型、最终状态）
	RechargeReviewsTotal *prometheus.CounterVec // 充值审核数（按结论）

	// 消息投递
	OutboxSentTotal *prometheus.CounterVec
}

// NewLedgerMetrics 创建并注册指标
func NewLedgerMetrics() *LedgerMetrics {
	return &LedgerMetrics{
		LedgerOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_ledger_ops_total",
				Help: "Total number of ledger operations",
			},
			[]string{"op", "result"}, // op: consume/recharge/recalculate
		),
		LedgerOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "breakfast_ledger_op_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		RiskEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_risk_events_total",
				Help: "Total number of risk events raised",
			},
			[]string{"type"},
		),
		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_lock_acquire_total",
				Help: "Total number of account lock acquisitions",
			},
			[]string{"result"}, // result: ok/failed
		),
		OrdersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_orders_total",
				Help: "Total number of settled orders",
			},
			[]string{"kind", "status"}, // kind: personal/batch/class_group
		),
		RechargeReviewsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_recharge_reviews_total",
				Help: "Total number of recharge reviews",
			},
			[]string{"decision"},
		),
		OutboxSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakfast_outbox_sent_total",
				Help: "Total number of outbox deliveries",
			},
			[]string{"result"},
		),
	}
}

var (
	defaultMetrics *LedgerMetrics
	once           sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *LedgerMetrics {
	once.Do(func() {
		defaultMetrics = NewLedgerMetrics()
	})
	return defaultMetrics
}
