package repository

import (
	"context"
	"errors"
	"time"

	"breakfastledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// CreateWithItems 写入订单头和明细，明细的 OrderID 由此回填
func (r *OrderRepository) CreateWithItems(ctx context.Context, tx *gorm.DB, order *model.Order, items []*model.OrderItem) error {
	db := r.conn(tx).WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.OrderID = order.ID
	}
	return db.Create(&items).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
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

// GetByIDForUpdate 锁定订单行，不加载明细
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) ListItems(ctx context.Context, tx *gorm.DB, orderID int64) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := r.conn(tx).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// UpdateItemResult 写入明细的扣款结果
func (r *OrderRepository) UpdateItemResult(ctx context.Context, tx *gorm.DB, item *model.OrderItem) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":         item.Status,
			"transaction_id": item.TransactionID,
			"fail_reason":    item.FailReason,
		}).Error
}

// Settle 订单状态从 fromStatus 推进到 toStatus 并写入成功总额
func (r *OrderRepository) Settle(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus string, total decimal.Decimal) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	result := r.conn(tx).WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, fromStatus).
		Updates(map[string]interface{}{
			"status":       toStatus,
			"total_amount": total,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

// Touch 刷新处理中订单的 updated_at，订单已离开 created 时返回 false
func (r *OrderRepository) Touch(ctx context.Context, tx *gorm.DB, orderID int64) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusCreated).
		UpdateColumn("updated_at", time.Now())
	return result.RowsAffected > 0, result.Error
}

// GetStaleOrders 停留在 created 且 beforeTime 之后没有进展的订单
func (r *OrderRepository) GetStaleOrders(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.OrderStatusCreated, beforeTime).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListByUser 用户作为下单人、目标人或批量订单扣款人的订单
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("creator_user_id = ? OR target_user_id = ? OR EXISTS (SELECT 1 FROM breakfast_order_item i WHERE i.order_id = breakfast_order.id AND i.target_user_id = ?)",
			userID, userID, userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
