package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakfastledger/internal/config"
	"breakfastledger/internal/infrastructure/lock"
	"breakfastledger/internal/metrics"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"
	"breakfastledger/pkg/idgen"
	"breakfastledger/pkg/money"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService 账本引擎，账户余额的唯一写入方
//
// 【核心流程】
//  1. 获取账户锁（进程内 / Redis）
//  2. 开启事务，SELECT ... FOR UPDATE 锁定账户行
//  3. 计算新余额并校验透支下限 balance >= -credit_limit
//  4. 写余额、写流水、做阈值检查
//  5. 提交
//
// 任何一步失败整体回滚；结果以 BalanceChangeResult 返回，不返回 error，
// 便于订单编排在单个明细失败后继续处理其余明细。
type LedgerService struct {
	db              *gorm.DB
	cfg             *config.Config
	locker          lock.AccountLocker
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	risk            *RiskService
	log             *log.Helper
}

func NewLedgerService(db *gorm.DB, cfg *config.Config, locker lock.AccountLocker, risk *RiskService, logger log.Logger) *LedgerService {
	return &LedgerService{
		db:              db,
		cfg:             cfg,
		locker:          locker,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		risk:            risk,
		log:             log.NewHelper(log.With(logger, "module", "service/ledger")),
	}
}

// BalanceChangeRequest 余额变动请求
type BalanceChangeRequest struct {
	AccountID      int64
	Amount         decimal.Decimal // 必须大于 0
	SourceType     string
	SourceID       int64
	OperatorUserID *int64
	Description    string
}

// BalanceChangeResult 余额变动结果
type BalanceChangeResult struct {
	Success       bool              `json:"success"`
	TransactionID int64             `json:"transaction_id,omitempty"`
	NewBalance    decimal.Decimal   `json:"new_balance"`
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	RiskEvents    []*model.RiskEvent `json:"risk_events,omitempty"`
}

func failResult(code, message string) *BalanceChangeResult {
	return &BalanceChangeResult{Success: false, ErrorCode: code, ErrorMessage: message}
}

// businessFailure 业务失败，用于回滚事务并把错误码带出
type businessFailure struct {
	code    string
	message string
}

func (e *businessFailure) Error() string {
	return e.code + ": " + e.message
}

// Consume 扣款
func (s *LedgerService) Consume(ctx context.Context, req *BalanceChangeRequest) *BalanceChangeResult {
	return s.apply(ctx, nil, model.TransactionTypeConsume, req, false)
}

// Recharge 充值入账
func (s *LedgerService) Recharge(ctx context.Context, req *BalanceChangeRequest) *BalanceChangeResult {
	return s.apply(ctx, nil, model.TransactionTypeRecharge, req, false)
}

// ConsumeWithTx 在调用方事务内扣款（保存点），调用方需已通过 LockAccount 持有账户锁
func (s *LedgerService) ConsumeWithTx(ctx context.Context, tx *gorm.DB, req *BalanceChangeRequest) *BalanceChangeResult {
	return s.apply(ctx, tx, model.TransactionTypeConsume, req, true)
}

// RechargeWithTx 在调用方事务内充值（保存点），调用方需已通过 LockAccount 持有账户锁
func (s *LedgerService) RechargeWithTx(ctx context.Context, tx *gorm.DB, req *BalanceChangeRequest) *BalanceChangeResult {
	return s.apply(ctx, tx, model.TransactionTypeRecharge, req, true)
}

// LockAccount 获取账户锁，返回的 unlock 必须调用
func (s *LedgerService) LockAccount(ctx context.Context, accountID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		metrics.GetMetrics().LockAcquireTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("获取账户锁失败: %w", err)
	}
	metrics.GetMetrics().LockAcquireTotal.WithLabelValues("ok").Inc()
	return unlock, nil
}

func (s *LedgerService) apply(ctx context.Context, tx *gorm.DB, txType string, req *BalanceChangeRequest, lockHeld bool) (result *BalanceChangeResult) {
	op := "consume"
	if txType == model.TransactionTypeRecharge {
		op = "recharge"
	}
	start := time.Now()
	defer func() {
		m := metrics.GetMetrics()
		m.LedgerOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		label := "success"
		if !result.Success {
			label = result.ErrorCode
		}
		m.LedgerOpsTotal.WithLabelValues(op, label).Inc()
	}()

	if !req.Amount.IsPositive() {
		return failResult(CodeInvalidAmount, "金额必须大于0")
	}
	amount := money.Round2(req.Amount)
	if !amount.IsPositive() {
		return failResult(CodeInvalidAmount, "金额必须大于0")
	}

	if !lockHeld {
		unlock, err := s.LockAccount(ctx, req.AccountID)
		if err != nil {
			s.log.WithContext(ctx).Errorf("账户锁获取失败: accountID=%d, err=%v", req.AccountID, err)
			return failResult(CodeInternalError, err.Error())
		}
		defer unlock()
	}

	var out BalanceChangeResult
	fn := func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, req.AccountID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		if account == nil || !account.IsActive() {
			if txType == model.TransactionTypeRecharge {
				s.log.WithContext(ctx).Errorf("充值目标账户不可用: accountID=%d", req.AccountID)
				return &businessFailure{CodeInternalError, "充值目标账户不存在或已停用"}
			}
			return &businessFailure{CodeAccountNotAvailable, "账户不存在或已停用"}
		}

		oldBalance := account.Balance
		var newBalance decimal.Decimal
		var direction int8
		if txType == model.TransactionTypeConsume {
			newBalance = money.Round2(oldBalance.Sub(amount))
			direction = model.DirectionOut
			if newBalance.LessThan(account.Floor()) {
				return &businessFailure{CodeInsufficientFunds, fmt.Sprintf("余额不足，当前余额 %s，透支额度 %s",
					money.Format(oldBalance), money.Format(account.CreditLimit))}
			}
		} else {
			newBalance = money.Round2(oldBalance.Add(amount))
			direction = model.DirectionIn
		}

		if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, newBalance); err != nil {
			return fmt.Errorf("更新余额失败: %w", err)
		}

		trans := &model.AccountTransaction{
			TransactionNo:  idgen.GenerateTransactionNo(),
			AccountID:      account.ID,
			Type:           txType,
			Direction:      direction,
			Amount:         amount,
			BalanceAfter:   newBalance,
			SourceType:     req.SourceType,
			SourceID:       req.SourceID,
			OperatorUserID: req.OperatorUserID,
			Description:    req.Description,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		events, err := s.risk.CheckThresholds(ctx, tx, account, oldBalance, newBalance)
		if err != nil {
			return err
		}

		out = BalanceChangeResult{
			Success:       true,
			TransactionID: trans.ID,
			NewBalance:    newBalance,
			RiskEvents:    events,
		}
		return nil
	}

	var err error
	if tx == nil {
		err = s.db.WithContext(ctx).Transaction(fn)
	} else {
		err = tx.Transaction(fn)
	}

	if err != nil {
		var bf *businessFailure
		if errors.As(err, &bf) {
			return failResult(bf.code, bf.message)
		}
		s.log.WithContext(ctx).Errorf("余额变动失败: type=%s, accountID=%d, amount=%s, err=%v",
			txType, req.AccountID, money.Format(amount), err)
		return failResult(CodeInternalError, err.Error())
	}

	s.log.WithContext(ctx).Infof("余额变动成功: type=%s, accountID=%d, amount=%s, balance=%s, source=%s/%d",
		txType, req.AccountID, money.Format(amount), money.Format(out.NewBalance), req.SourceType, req.SourceID)
	return &out
}
