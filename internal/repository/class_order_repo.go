package repository

import (
	"context"
	"errors"
	"time"

	"breakfastledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrClassAccountNotFound = errors.New("班级账户不存在")
	ErrGroupOrderNotFound   = errors.New("团餐订单不存在")
)

// ClassOrderRepository 班级账户、学生和团餐订单
type ClassOrderRepository struct {
	db *gorm.DB
}

func NewClassOrderRepository(db *gorm.DB) *ClassOrderRepository {
	return &ClassOrderRepository{db: db}
}

func (r *ClassOrderRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *ClassOrderRepository) GetClassAccount(ctx context.Context, id int64) (*model.ClassAccount, error) {
	var ca model.ClassAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ca).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassAccountNotFound
		}
		return nil, err
	}
	return &ca, nil
}

func (r *ClassOrderRepository) IsOperator(ctx context.Context, classAccountID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ClassAccountOperator{}).
		Where("class_account_id = ? AND user_id = ?", classAccountID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetStudents 批量查询学生，返回 id -> 学生
func (r *ClassOrderRepository) GetStudents(ctx context.Context, ids []int64) (map[int64]*model.Student, error) {
	result := make(map[int64]*model.Student, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var students []*model.Student
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&students).Error; err != nil {
		return nil, err
	}
	for _, s := range students {
		result[s.ID] = s
	}
	return result, nil
}

func (r *ClassOrderRepository) CreateWithItems(ctx context.Context, tx *gorm.DB, order *model.ClassGroupOrder, items []*model.ClassGroupOrderItem) error {
	db := r.conn(tx).WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.GroupOrderID = order.ID
	}
	return db.Create(&items).Error
}

func (r *ClassOrderRepository) GetByID(ctx context.Context, id int64) (*model.ClassGroupOrder, error) {
	var order model.ClassGroupOrder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupOrderNotFound
		}
		return nil, err
	}
	items, err := r.ListItems(ctx, nil, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *ClassOrderRepository) ListItems(ctx context.Context, tx *gorm.DB, groupOrderID int64) ([]*model.ClassGroupOrderItem, error) {
	var items []*model.ClassGroupOrderItem
	err := r.conn(tx).WithContext(ctx).
		Where("group_order_id = ?", groupOrderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindOrphanSourceIDs 没有对应团餐订单、仍有净扣款、最后一笔流水早于 before 的来源 ID
func (r *ClassOrderRepository) FindOrphanSourceIDs(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("source_type = ?", model.SourceTypeClassGroupOrder).
		Where("NOT EXISTS (SELECT 1 FROM class_group_order o WHERE o.id = account_transaction.source_id)").
		Group("source_id").
		Having("MAX(created_at) < ?", before).
		Having("SUM(CASE WHEN type = ? THEN amount ELSE -amount END) > 0", model.TransactionTypeConsume).
		Order("source_id ASC").
		Limit(limit).
		Pluck("source_id", &ids).Error
	return ids, err
}
