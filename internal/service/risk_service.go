package service

import (
	"context"
	"fmt"

	"breakfastledger/internal/metrics"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"
	"breakfastledger/pkg/money"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RiskService 余额阈值检查
type RiskService struct {
	riskRepo     *repository.RiskRepository
	notification *NotificationService
	log          *log.Helper
}

func NewRiskService(db *gorm.DB, notification *NotificationService, logger log.Logger) *RiskService {
	return &RiskService{
		riskRepo:     repository.NewRiskRepository(db),
		notification: notification,
		log:          log.NewHelper(log.With(logger, "module", "service/risk")),
	}
}

type thresholdRule struct {
	eventType string
	level     int
	title     string
	threshold decimal.Decimal
}

// CheckThresholds 在余额变动的同一事务中执行
//
// 只有向下穿越（old >= 阈值 且 new < 阈值）才触发；充值或停留在阈值下方不触发。
// 风险事件写入失败返回错误，由调用方回滚整笔变动；通知失败只记日志。
func (s *RiskService) CheckThresholds(ctx context.Context, tx *gorm.DB, account *model.Account, oldBalance, newBalance decimal.Decimal) ([]*model.RiskEvent, error) {
	rules := []thresholdRule{
		{model.RiskEventLowBalance, model.RiskLevelReminder, "余额不足提醒", account.ReminderThreshold},
		{model.RiskEventDangerBalance, model.RiskLevelDanger, "余额危急", account.DangerThreshold},
	}

	var raised []*model.RiskEvent
	for _, rule := range rules {
		if !CrossedDown(oldBalance, newBalance, rule.threshold) {
			continue
		}

		event := &model.RiskEvent{
			AccountID: account.ID,
			Type:      rule.eventType,
			Level:     rule.level,
			Message:   thresholdMessage(rule, newBalance),
		}
		if err := s.riskRepo.Create(ctx, tx, event); err != nil {
			return nil, fmt.Errorf("写入风险事件失败: %w", err)
		}
		raised = append(raised, event)
		metrics.GetMetrics().RiskEventsTotal.WithLabelValues(rule.eventType).Inc()

		if account.OwnerUserID == 0 {
			continue
		}
		s.notifyInSavepoint(ctx, tx, account.OwnerUserID, rule.title, event.Message)
	}
	return raised, nil
}

// notifyInSavepoint 通知放在保存点中，失败时只回滚通知本身
func (s *RiskService) notifyInSavepoint(ctx context.Context, tx *gorm.DB, userID int64, title, content string) {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.notification.Notify(ctx, sp, userID, title, content)
	})
	if err != nil {
		s.log.WithContext(ctx).Warnf("发送余额通知失败: userID=%d, title=%s, err=%v", userID, title, err)
	}
}

// CrossedDown 余额是否自上而下穿过阈值
func CrossedDown(oldBalance, newBalance, threshold decimal.Decimal) bool {
	return oldBalance.GreaterThanOrEqual(threshold) && newBalance.LessThan(threshold)
}

func thresholdMessage(rule thresholdRule, newBalance decimal.Decimal) string {
	if rule.eventType == model.RiskEventDangerBalance {
		return fmt.Sprintf("余额低于危急阈值 %s，当前余额 %s", money.Format(rule.threshold), money.Format(newBalance))
	}
	return fmt.Sprintf("余额低于提醒阈值 %s，当前余额 %s", money.Format(rule.threshold), money.Format(newBalance))
}
