package domain

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places money carries.
const AmountPlaces = 2

var (
	// MaxAmount caps a single transfer or deposit.
	MaxAmount = decimal.New(1, 12)
	// MaxBalance caps a balance reported by a ledger.
	MaxBalance = decimal.New(1, 15)
)

var (
	ErrAmountTooPrecise = errors.New("amount has more than 2 decimal places")
	ErrAmountTooLarge   = errors.New("amount exceeds the maximum")
	ErrNegativeBalance  = errors.New("balance is negative")
)

// Dollars renders an amount the way the dashboard shows money: "$1234.50".
func Dollars(d decimal.Decimal) string {
	return "$" + d.StringFixed(AmountPlaces)
}

// CheckAmount validates a transfer or deposit amount against the money bounds and
// returns it in canonical form. Sign is not checked.
func CheckAmount(d decimal.Decimal) (decimal.Decimal, error) {
	return bounded(d, MaxAmount)
}

// CheckBalance validates a balance: non-negative, within MaxBalance, at most cents.
func CheckBalance(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeBalance
	}
	return bounded(d, MaxBalance)
}

// bounded inspects only the coefficient digits and the exponent before doing any
// arithmetic, so a value like 1e400000000 is refused without being expanded.
func bounded(d, limit decimal.Decimal) (decimal.Decimal, error) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return decimal.Zero, nil
	}
	neg := coef.Sign() < 0

	digits := coef.Abs(coef).String()
	significant := strings.TrimRight(digits, "0")
	exp := int64(d.Exponent()) + int64(len(digits)-len(significant))

	if int64(len(significant))+exp > int64(len(limit.StringFixed(0))) {
		return decimal.Zero, ErrAmountTooLarge
	}
	if exp < -AmountPlaces {
		return decimal.Zero, ErrAmountTooPrecise
	}

	c, _ := new(big.Int).SetString(significant, 10)
	v := decimal.NewFromBigInt(c, int32(exp))
	if v.GreaterThan(limit) {
		return decimal.Zero, ErrAmountTooLarge
	}
	if neg {
		v = v.Neg()
	}
	return v, nil
}
