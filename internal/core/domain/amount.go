package domain

import "github.com/shopspring/decimal"

// FormatAmount returns the decimal representation of an amount expressed in
// the smallest unit of a currency having coin units per whole coin.
func FormatAmount(amount, coin uint64) string {
	if coin == 0 {
		coin = 1
	}
	return decimal.NewFromInt(int64(amount)).
		Div(decimal.NewFromInt(int64(coin))).
		String()
}

// ParseAmount converts a decimal string of whole coins into the smallest unit
// of a currency having coin units per whole coin. Digits beyond the unit are
// truncated.
func ParseAmount(amount string, coin uint64) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, ErrTransactionZeroAmount
	}
	return uint64(d.Mul(decimal.NewFromInt(int64(coin))).IntPart()), nil
}
