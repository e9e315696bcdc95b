package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student 学生，个人账户通过 owner_user_id = user_id 关联
type Student struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	StudentNo string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"student_no"`
	Name      string    `gorm:"type:varchar(64)" json:"name"`
	ClassID   int64     `gorm:"index;not null" json:"class_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Student) TableName() string {
	return "student"
}

// ClassAccount 班级账户，用于老师代全班下单，带单笔上限和 IP 白名单
type ClassAccount struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassID             int64           `gorm:"index;not null" json:"class_id"`
	Name                string          `gorm:"type:varchar(64);not null" json:"name"`
	MaxStudentsPerOrder int             `gorm:"not null;default:10" json:"max_students_per_order"`
	MaxAmountPerOrder   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:80" json:"max_amount_per_order"`
	Enabled             bool            `gorm:"not null;default:true" json:"enabled"`
	AllowedIP           string          `gorm:"type:varchar(64)" json:"allowed_ip,omitempty"`
	Remark              string          `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClassAccount) TableName() string {
	return "class_account"
}

// ClassAccountOperator 班级账户的授权操作人
type ClassAccountOperator struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassAccountID int64     `gorm:"not null;uniqueIndex:uk_class_operator,priority:1" json:"class_account_id"`
	UserID         int64     `gorm:"not null;uniqueIndex:uk_class_operator,priority:2" json:"user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ClassAccountOperator) TableName() string {
	return "class_account_operator"
}

// ClassGroupOrder 班级团餐订单
type ClassGroupOrder struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	ClassAccountID int64           `gorm:"index;not null" json:"class_account_id"`
	OperatorUserID int64           `gorm:"index;not null" json:"operator_user_id"`
	OrderTime      time.Time       `gorm:"not null" json:"order_time"`
	StudentCount   int             `gorm:"not null" json:"student_count"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Remark         string          `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Items []*ClassGroupOrderItem `gorm:"-" json:"items,omitempty"`
}

func (ClassGroupOrder) TableName() string {
	return "class_group_order"
}

// ClassGroupOrderItem 团餐明细，每行对应一个学生的个人账户
type ClassGroupOrderItem struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupOrderID  int64           `gorm:"index;not null" json:"group_order_id"`
	StudentID     int64           `gorm:"not null" json:"student_id"`
	AccountID     int64           `gorm:"not null;default:0" json:"account_id"` // 未解析到账户时为 0
	ProductID     *int64          `json:"product_id,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	Status        string          `gorm:"type:varchar(16);not null" json:"status"`
	FailReason    string          `gorm:"type:varchar(255)" json:"fail_reason,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClassGroupOrderItem) TableName() string {
	return "class_group_order_item"
}
