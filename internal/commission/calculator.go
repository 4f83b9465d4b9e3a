package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/afribook/afribook-backend/pkg/enums"
	"github.com/afribook/afribook-backend/pkg/money"
)

// Breakdown is the per-order split between the platform and the seller.
// Commission + SellerAmount always equals the subtotal exactly.
type Breakdown struct {
	Subtotal     int64
	Commission   int64
	SellerAmount int64
}

// Calculator computes the platform commission for settled orders.
type Calculator struct {
	rate     decimal.Decimal
	currency enums.Currency
}

// NewCalculator validates the rate and returns a calculator. The rate is a
// fraction in [0, 1], e.g. 0.05 for a 5% commission.
func NewCalculator(rate decimal.Decimal, currency enums.Currency) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1]: %s", rate)
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", currency)
	}
	return &Calculator{rate: rate, currency: currency}, nil
}

// Split computes the commission on a subtotal in minor units. The commission
// is rounded half-up to the currency minor unit and the seller amount is the
// remainder, so the two legs always sum back to the subtotal.
func (c *Calculator) Split(subtotal int64) (Breakdown, error) {
	if subtotal < 0 {
		return Breakdown{}, fmt.Errorf("subtotal must be non-negative: %d", subtotal)
	}
	gross := money.FromMinorUnits(subtotal, c.currency)
	commission := money.RoundHalfUp(gross.Mul(c.rate), c.currency)
	return Breakdown{
		Subtotal:     subtotal,
		Commission:   commission,
		SellerAmount: subtotal - commission,
	}, nil
}

// Rate returns the configured commission rate.
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}
