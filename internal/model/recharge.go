package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RechargeStatusPending  = "pending"
	RechargeStatusApproved = "approved"
	RechargeStatusRejected = "rejected"
)

// RechargeRequest 线下充值申请，审核通过后才入账
//
// pending 状态不持有流水；approved 状态恰好对应一笔 RECHARGE 流水
type RechargeRequest struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	AccountID       int64           `gorm:"index;not null" json:"account_id"`
	UserID          int64           `gorm:"index;not null" json:"user_id"` // 申请人
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PayMethod       string          `gorm:"type:varchar(32);not null" json:"pay_method"`
	VoucherImageURL string          `gorm:"type:varchar(255)" json:"voucher_image_url,omitempty"`
	Status          string          `gorm:"type:varchar(16);index;not null" json:"status"`
	ReviewerUserID  *int64          `json:"reviewer_user_id,omitempty"`
	ReviewTime      *time.Time      `json:"review_time,omitempty"`
	ReviewComment   string          `gorm:"type:varchar(255)" json:"review_comment,omitempty"`
	TransactionID   *int64          `json:"transaction_id,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RechargeRequest) TableName() string {
	return "recharge_request"
}

// Product 早餐商品（目录只读）
type Product struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID int64           `gorm:"index;not null" json:"category_id"`
	VendorID   *int64          `gorm:"index" json:"vendor_id,omitempty"`
	Name       string          `gorm:"type:varchar(64);not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Unit       string          `gorm:"type:varchar(16);not null;default:份" json:"unit"`
	Enabled    bool            `gorm:"not null;default:true" json:"enabled"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "breakfast_product"
}
