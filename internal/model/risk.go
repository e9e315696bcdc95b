package model

import (
	"time"
)

const (
	RiskEventLowBalance    = "LOW_BALANCE"
	RiskEventDangerBalance = "DANGER_BALANCE"
)

const (
	RiskLevelReminder = 1
	RiskLevelDanger   = 2
)

// RiskEvent 风险事件表，余额向下穿越阈值时写入，不可修改
type RiskEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index;not null" json:"account_id"`
	Type      string    `gorm:"type:varchar(32);not null" json:"type"`
	Level     int       `gorm:"not null" json:"level"`
	Message   string    `gorm:"type:varchar(255);not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (RiskEvent) TableName() string {
	return "risk_event"
}

// Notification 站内通知
type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Content   string    `gorm:"type:varchar(255);not null" json:"content"`
	ReadFlag  bool      `gorm:"not null;default:false" json:"read_flag"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notification"
}
