package money

import (
	"github.com/shopspring/decimal"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// RoundHalfUp rounds the value half-up to the currency's minor unit and
// returns the result in minor units. XOF/XAF carry no fractional units, so
// a minor unit is one franc.
func RoundHalfUp(value decimal.Decimal, currency enums.Currency) int64 {
	scaled := value.Shift(currency.MinorUnits())
	return scaled.Round(0).IntPart()
}

// FromMinorUnits converts an amount in minor units back to a decimal value.
func FromMinorUnits(amount int64, currency enums.Currency) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-currency.MinorUnits())
}
