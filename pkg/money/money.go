// Package money 金额工具，统一两位小数、四舍五入（远离零）
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Zero 零值
var Zero = decimal.Zero

// Round2 保留两位小数
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FromFloat 由浮点数构造金额，仅用于配置项
func FromFloat(f float64) decimal.Decimal {
	return Round2(decimal.NewFromFloat(f))
}

// Parse 解析字符串金额
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("金额格式错误: %w", err)
	}
	return Round2(d), nil
}

// Format 以两位小数输出
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Sum 求和
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round2(total)
}
