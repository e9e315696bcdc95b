package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeConsume  = "CONSUME"  // 消费（扣款）
	TransactionTypeRecharge = "RECHARGE" // 充值
	TransactionTypeAdjust   = "ADJUST"   // 人工调整
)

const (
	DirectionIn  int8 = 1
	DirectionOut int8 = -1
)

// 流水来源类型
const (
	SourceTypeOrder            = "ORDER"
	SourceTypeBatchOrder       = "BATCH_ORDER"
	SourceTypeClassGroupOrder  = "CLASS_GROUP_ORDER"
	SourceTypeRechargeApproval = "RECHARGE_APPROVAL"
	SourceTypeAdminManual      = "ADMIN_MANUAL"
)

// ============================================================================
// 账户流水实体
// ============================================================================

// AccountTransaction 账户流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，唯一的修改入口是管理员调账后的余额重算
// 2. 每笔流水记录来源（source_type + source_id），便于对账
// 3. 记录交易后余额，便于校验余额一致性
type AccountTransaction struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`    // 流水号（全局唯一）
	AccountID      int64           `gorm:"index;not null" json:"account_id"`                               // 账户ID
	Type           string          `gorm:"type:varchar(32);not null" json:"type"`                          // 交易类型
	Direction      int8            `gorm:"not null" json:"direction"`                                      // +1 入账，-1 出账
	Amount         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`                      // 金额（恒为正）
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance_after"`               // 交易后余额
	SourceType     string          `gorm:"type:varchar(32);index:idx_tx_source,priority:1" json:"source_type"` // 来源类型
	SourceID       int64           `gorm:"index:idx_tx_source,priority:2" json:"source_id"`                // 来源ID
	OperatorUserID *int64          `json:"operator_user_id,omitempty"`                                     // 操作人，自助消费为空
	Description    string          `gorm:"type:varchar(255)" json:"description"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AccountTransaction) TableName() string {
	return "account_transaction"
}

// SignedAmount 带方向的金额
func (t *AccountTransaction) SignedAmount() decimal.Decimal {
	if t.Direction < 0 {
		return t.Amount.Neg()
	}
	return t.Amount
}

// DirectionOf 按交易类型推导资金方向，ADJUST 由金额符号决定
func DirectionOf(txType string, signed decimal.Decimal) int8 {
	switch txType {
	case TransactionTypeConsume:
		return DirectionOut
	case TransactionTypeRecharge:
		return DirectionIn
	}
	if signed.IsNegative() {
		return DirectionOut
	}
	return DirectionIn
}
