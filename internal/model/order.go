package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypePersonal = "PERSONAL"
	OrderTypeBatch    = "BATCH"
)

// 订单（含班级团餐订单）状态
const (
	OrderStatusCreated          = "created"
	OrderStatusSuccess          = "success"
	OrderStatusPartiallySuccess = "partially_success"
	OrderStatusCanceled         = "canceled"
)

// 订单明细状态
const (
	ItemStatusPending = "pending"
	ItemStatusSuccess = "success"
	ItemStatusFailed  = "failed"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusCreated: {OrderStatusSuccess, OrderStatusPartiallySuccess, OrderStatusCanceled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// SettleStatus 由明细结果推导订单最终状态
//
//	全部失败 -> canceled，全部成功 -> success，其余 -> partially_success
func SettleStatus(successCount, itemCount int) string {
	switch {
	case successCount == 0:
		return OrderStatusCanceled
	case successCount == itemCount:
		return OrderStatusSuccess
	default:
		return OrderStatusPartiallySuccess
	}
}

// Order 订单聚合根（个人下单与管理员批量下单共用）
type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	OrderType     string          `gorm:"type:varchar(16);not null" json:"order_type"`
	CreatorUserID int64           `gorm:"index;not null" json:"creator_user_id"`
	TargetUserID  *int64          `gorm:"index" json:"target_user_id,omitempty"`
	Remark        string          `gorm:"type:varchar(255)" json:"remark"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"` // 仅统计成功明细
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Items []*OrderItem `gorm:"-" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "breakfast_order"
}

// OrderItem 订单明细，单价和金额在下单时快照
type OrderItem struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64           `gorm:"index;not null" json:"order_id"`
	AccountID     int64           `gorm:"index;not null" json:"account_id"` // 扣款的个人账户
	TargetUserID  int64           `gorm:"not null" json:"target_user_id"`
	ProductID     int64           `gorm:"not null" json:"product_id"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	VendorID      *int64          `json:"vendor_id,omitempty"`
	Quantity      int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	ItemRemark    string          `gorm:"type:varchar(255)" json:"item_remark,omitempty"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	Status        string          `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	FailReason    string          `gorm:"type:varchar(255)" json:"fail_reason,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "breakfast_order_item"
}
