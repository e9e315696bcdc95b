package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypePersonal = "personal"
	AccountTypeClass    = "class"
)

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
)

// Account 账户表
// 每个可支付主体一行（个人或班级），余额只允许由账本服务修改
//
// 【不变式】balance >= -credit_limit
type Account struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Type              string          `gorm:"type:varchar(16);not null;uniqueIndex:uk_account_owner,priority:1" json:"type"`
	OwnerUserID       int64           `gorm:"not null;uniqueIndex:uk_account_owner,priority:2" json:"owner_user_id"`
	Name              string          `gorm:"type:varchar(64);not null" json:"name"`
	Balance           decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"balance"`            // 当前余额
	CreditLimit       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"credit_limit"`       // 透支额度（>=0）
	ReminderThreshold decimal.Decimal `gorm:"type:decimal(10,2);not null;default:25" json:"reminder_threshold"` // 余额提醒阈值
	DangerThreshold   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:3" json:"danger_threshold"`    // 余额危急阈值
	Status            string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// IsActive 账户是否可用
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Floor 余额下限，即 -credit_limit
func (a *Account) Floor() decimal.Decimal {
	return a.CreditLimit.Neg()
}
