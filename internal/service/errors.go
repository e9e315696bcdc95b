package service

import (
	"errors"
	"fmt"
)

// 错误码，出现在 BalanceChangeResult、订单明细 fail_reason 和接口响应中
const (
	CodeAccountNotAvailable     = "ACCOUNT_NOT_AVAILABLE"
	CodeInsufficientFunds       = "INSUFFICIENT_FUNDS"
	CodeProductNotFound         = "PRODUCT_NOT_FOUND"
	CodeClassOrderLimitExceeded = "CLASS_ORDER_LIMIT_EXCEEDED"
	CodeForbidden               = "FORBIDDEN"
	CodeNotFound                = "NOT_FOUND"
	CodeInternalError           = "INTERNAL_ERROR"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeStudentNotFound         = "STUDENT_NOT_FOUND"
	CodeNotSameClass            = "NOT_SAME_CLASS"
	CodeNoPersonalAccount       = "NO_PERSONAL_ACCOUNT"
	CodeInterrupted             = "INTERRUPTED"
	CodeInvalidParam            = "INVALID_PARAM"
)

// 请求级错误，整单拒绝、不产生任何写入
var (
	ErrInvalidParam          = errors.New("参数错误")
	ErrEmptyItems            = fmt.Errorf("%w: 订单明细不能为空", ErrInvalidParam)
	ErrNotFound              = errors.New("资源不存在")
	ErrForbidden             = errors.New("无权操作")
	ErrClassOrderLimit       = errors.New("超出班级单笔下单限制")
	ErrInvalidAmount         = errors.New("金额必须大于0")
	ErrCreditLimitViolated   = errors.New("调整后余额低于透支下限")
	ErrRechargeFailed        = errors.New("充值入账失败")
	ErrRechargeNotReviewable = errors.New("充值申请不存在或已处理")
	ErrGroupOrderReversed    = errors.New("团餐扣款已被退回")
	ErrOrderAlreadySettled   = errors.New("订单已被补偿结算")
	ErrOrderNotStale         = errors.New("订单仍在处理或已结算")
)

// CodeOf 请求级错误对应的错误码
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRechargeNotReviewable):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrClassOrderLimit):
		return CodeClassOrderLimitExceeded
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrCreditLimitViolated):
		return CodeInsufficientFunds
	case errors.Is(err, ErrInvalidParam):
		return CodeInvalidParam
	default:
		return CodeInternalError
	}
}
