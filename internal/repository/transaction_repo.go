package repository

import (
	"context"
	"errors"

	"breakfastledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("流水不存在")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.AccountTransaction) error {
	return r.conn(tx).WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.AccountTransaction, error) {
	var trans model.AccountTransaction
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// ListByAccount 账户最近流水，按时间倒序
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

// ListForReplay 账户全部流水，按发生顺序，用于余额重算
func (r *TransactionRepository) ListForReplay(ctx context.Context, tx *gorm.DB, accountID int64) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	err := r.conn(tx).WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// FindBySource 按来源查询流水（对账、补偿使用）
func (r *TransactionRepository) FindBySource(ctx context.Context, tx *gorm.DB, sourceType string, sourceID int64) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	err := r.conn(tx).WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// HasSourceType 来源下是否存在指定类型的流水
func (r *TransactionRepository) HasSourceType(ctx context.Context, tx *gorm.DB, sourceType string, sourceID int64, txType string) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("source_type = ? AND source_id = ? AND type = ?", sourceType, sourceID, txType).
		Count(&count).Error
	return count > 0, err
}

// Update 更新类型、方向、金额和描述
func (r *TransactionRepository) Update(ctx context.Context, tx *gorm.DB, trans *model.AccountTransaction) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("id = ?", trans.ID).
		Updates(map[string]interface{}{
			"type":        trans.Type,
			"direction":   trans.Direction,
			"amount":      trans.Amount,
			"description": trans.Description,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) UpdateBalanceAfter(ctx context.Context, tx *gorm.DB, id int64, balanceAfter decimal.Decimal) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("id = ?", id).
		UpdateColumn("balance_after", balanceAfter).Error
}

func (r *TransactionRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	result := r.conn(tx).WithContext(ctx).Delete(&model.AccountTransaction{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
