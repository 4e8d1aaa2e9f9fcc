package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
)

// toUnits converts an amount of whole coins into the smallest units of the
// currency.
func toUnits(currency, amount string) (uint64, error) {
	params, ok := connector.ParamsByCurrency(currency)
	if !ok {
		return 0, fmt.Errorf(
			"unknown currency %s, use --units to give amounts in units", currency,
		)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %s", amount)
	}
	units := d.Mul(decimal.NewFromInt(int64(params.Coin)))
	if !units.IsInteger() {
		return 0, fmt.Errorf("%s has too many decimals for %s", amount, currency)
	}
	if units.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return units.BigInt().Uint64(), nil
}

func parseUnits(amount string) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || !d.IsInteger() || d.Sign() <= 0 {
		return 0, fmt.Errorf("invalid amount %s", amount)
	}
	return d.BigInt().Uint64(), nil
}

// formatLeg renders an amount of a currency with the address involved, in
// whole coins when the currency is known.
func formatLeg(units uint64, currency, address string) string {
	amount := decimal.NewFromInt(int64(units)).String()
	if params, ok := connector.ParamsByCurrency(currency); ok {
		amount = decimal.NewFromInt(int64(units)).
			Div(decimal.NewFromInt(int64(params.Coin))).String()
	}
	return fmt.Sprintf("%s %s (%s)", amount, currency, address)
}
