package service

import (
	"context"
	"errors"
	"fmt"

	"breakfastledger/internal/metrics"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"
	"breakfastledger/pkg/idgen"
	"breakfastledger/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 管理员调账
// ============================================================================
//
// 补录、修改、删除流水后按时间顺序重放该账户全部流水，
// 重写每笔 balance_after 和账户余额。重放结果低于透支下限时拒绝本次调整。

// AdjustmentRequest 管理员补录流水
type AdjustmentRequest struct {
	AdminUserID  int64
	TargetUserID int64
	Type         string          // CONSUME / RECHARGE / ADJUST，默认 ADJUST
	Amount       decimal.Decimal // ADJUST 可为负数，表示扣减
	Remark       string
}

// AmendRequest 修改流水，字段为空表示不修改
type AmendRequest struct {
	Type   *string
	Amount *decimal.Decimal
	Remark *string
}

// normalizeAmount 返回 (方向, 正数金额)
func normalizeAmount(txType string, amount decimal.Decimal) (int8, decimal.Decimal, error) {
	amount = money.Round2(amount)
	switch txType {
	case model.TransactionTypeConsume, model.TransactionTypeRecharge:
		if !amount.IsPositive() {
			return 0, decimal.Zero, ErrInvalidAmount
		}
	case model.TransactionTypeAdjust:
		if amount.IsZero() {
			return 0, decimal.Zero, ErrInvalidAmount
		}
	default:
		return 0, decimal.Zero, fmt.Errorf("%w: 不支持的流水类型 %s", ErrInvalidParam, txType)
	}
	return model.DirectionOf(txType, amount), amount.Abs(), nil
}

// PostAdjustment 为用户个人账户补录一笔流水
func (s *LedgerService) PostAdjustment(ctx context.Context, req *AdjustmentRequest) (*model.AccountTransaction, error) {
	txType := req.Type
	if txType == "" {
		txType = model.TransactionTypeAdjust
	}
	direction, amount, err := normalizeAmount(txType, req.Amount)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetOrCreate(ctx, newPersonalAccount(s.cfg, req.TargetUserID))
	if err != nil {
		return nil, fmt.Errorf("获取个人账户失败: %w", err)
	}

	unlock, err := s.LockAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	operator := req.AdminUserID
	trans := &model.AccountTransaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		AccountID:      account.ID,
		Type:           txType,
		Direction:      direction,
		Amount:         amount,
		BalanceAfter:   account.Balance,
		SourceType:     model.SourceTypeAdminManual,
		OperatorUserID: &operator,
		Description:    req.Remark,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.accountRepo.GetByIDForUpdate(ctx, tx, account.ID); err != nil {
			return err
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		if _, err := s.recalculate(ctx, tx, account.ID); err != nil {
			return err
		}
		reloaded, err := s.transactionRepo.GetByID(ctx, tx, trans.ID)
		if err != nil {
			return err
		}
		trans = reloaded
		return nil
	})
	s.recordAdminOp("adjust", err)
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Infof("管理员补录流水: admin=%d, accountID=%d, type=%s, amount=%s",
		req.AdminUserID, account.ID, txType, money.Format(amount))
	return trans, nil
}

// AmendTransaction 修改流水的类型、金额或备注
func (s *LedgerService) AmendTransaction(ctx context.Context, transactionID int64, req *AmendRequest) (*model.AccountTransaction, error) {
	existing, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.LockAccount(ctx, existing.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *model.AccountTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.accountRepo.GetByIDForUpdate(ctx, tx, existing.AccountID); err != nil {
			return err
		}
		trans, err := s.transactionRepo.GetByID(ctx, tx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrNotFound
			}
			return err
		}

		txType := trans.Type
		if req.Type != nil && *req.Type != "" {
			txType = *req.Type
		}
		signed := trans.SignedAmount()
		if req.Amount != nil {
			signed = *req.Amount
		} else if txType != model.TransactionTypeAdjust {
			signed = trans.Amount
		}
		direction, amount, err := normalizeAmount(txType, signed)
		if err != nil {
			return err
		}

		trans.Type = txType
		trans.Direction = direction
		trans.Amount = amount
		if req.Remark != nil {
			trans.Description = *req.Remark
		}
		if err := s.transactionRepo.Update(ctx, tx, trans); err != nil {
			return fmt.Errorf("更新流水失败: %w", err)
		}
		if _, err := s.recalculate(ctx, tx, trans.AccountID); err != nil {
			return err
		}
		result, err = s.transactionRepo.GetByID(ctx, tx, trans.ID)
		return err
	})
	s.recordAdminOp("amend", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTransaction 删除流水并重算余额
func (s *LedgerService) DeleteTransaction(ctx context.Context, transactionID int64) error {
	existing, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return err
	}

	unlock, err := s.LockAccount(ctx, existing.AccountID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.accountRepo.GetByIDForUpdate(ctx, tx, existing.AccountID); err != nil {
			return err
		}
		if err := s.transactionRepo.Delete(ctx, tx, transactionID); err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrNotFound
			}
			return err
		}
		_, err := s.recalculate(ctx, tx, existing.AccountID)
		return err
	})
	s.recordAdminOp("delete", err)
	return err
}

// RecalculateBalance 重放账户流水并修正余额
func (s *LedgerService) RecalculateBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	unlock, err := s.LockAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	var balance decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.recalculate(ctx, tx, accountID)
		return err
	})
	s.recordAdminOp("recalculate", err)
	return balance, err
}

// recalculate 从 0 开始按 (created_at, id) 顺序重放，调用方需持有账户锁和事务
func (s *LedgerService) recalculate(ctx context.Context, tx *gorm.DB, accountID int64) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}

	transactions, err := s.transactionRepo.ListForReplay(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询流水失败: %w", err)
	}

	running := decimal.Zero
	for _, t := range transactions {
		running = money.Round2(running.Add(t.SignedAmount()))
		if t.BalanceAfter.Equal(running) {
			continue
		}
		if err := s.transactionRepo.UpdateBalanceAfter(ctx, tx, t.ID, running); err != nil {
			return decimal.Zero, fmt.Errorf("更新流水余额失败: %w", err)
		}
	}

	if running.LessThan(account.Floor()) {
		return decimal.Zero, fmt.Errorf("%w: 重算余额 %s，透支额度 %s",
			ErrCreditLimitViolated, money.Format(running), money.Format(account.CreditLimit))
	}

	if err := s.accountRepo.UpdateBalance(ctx, tx, accountID, running); err != nil {
		return decimal.Zero, fmt.Errorf("更新余额失败: %w", err)
	}
	return running, nil
}

func (s *LedgerService) loadTransaction(ctx context.Context, id int64) (*model.AccountTransaction, error) {
	trans, err := s.transactionRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return trans, nil
}

func (s *LedgerService) recordAdminOp(op string, err error) {
	result := "success"
	if err != nil {
		result = CodeOf(err)
	}
	metrics.GetMetrics().LedgerOpsTotal.WithLabelValues(op, result).Inc()
}
