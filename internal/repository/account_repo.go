package repository

import (
	"context"
	"errors"

	"breakfastledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	return r.conn(tx).WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate 锁定账户行（SELECT ... FOR UPDATE），必须在事务内调用
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByOwner(ctx context.Context, accountType string, ownerUserID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("type = ? AND owner_user_id = ?", accountType, ownerUserID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetPersonalByOwners 批量查询个人账户，返回 owner_user_id -> 账户
func (r *AccountRepository) GetPersonalByOwners(ctx context.Context, ownerUserIDs []int64) (map[int64]*model.Account, error) {
	result := make(map[int64]*model.Account, len(ownerUserIDs))
	if len(ownerUserIDs) == 0 {
		return result, nil
	}
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("type = ? AND owner_user_id IN ?", model.AccountTypePersonal, ownerUserIDs).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		result[a.OwnerUserID] = a
	}
	return result, nil
}

// GetOrCreate 获取账户，不存在则创建
//
// 并发创建依赖 (type, owner_user_id) 唯一索引，冲突时忽略并重新查询
func (r *AccountRepository) GetOrCreate(ctx context.Context, template *model.Account) (*model.Account, error) {
	account, err := r.GetByOwner(ctx, template.Type, template.OwnerUserID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}, {Name: "owner_user_id"}},
			DoNothing: true,
		}).
		Create(template).Error

	if err != nil {
		return nil, err
	}

	return r.GetByOwner(ctx, template.Type, template.OwnerUserID)
}

// UpdateBalance 写入新余额，调用方需已持有行锁
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id int64, balance decimal.Decimal) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("balance", balance)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// UpdateStatus 启用 / 停用账户
func (r *AccountRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
