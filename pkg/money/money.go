package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are BRL values with two decimal places. Every amount that
// crosses a store or provider boundary goes through Round first so the
// same value never exists with two different scales.

func Round(value decimal.Decimal) decimal.Decimal {
	return value.RoundBank(2)
}

func Percent(value decimal.Decimal, percentage decimal.Decimal) decimal.Decimal {
	return Round(value.Mul(percentage).Div(decimal.NewFromInt(100)))
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func ToCents(value decimal.Decimal) int64 {
	return Round(value).Shift(2).IntPart()
}

func FormatBRL(value decimal.Decimal) string {
	return fmt.Sprintf("R$ %s", Round(value).StringFixed(2))
}

func IsPositive(value decimal.Decimal) bool {
	return value.GreaterThan(decimal.Zero)
}
