package database

import "github.com/shopspring/decimal"

// Targets below this are treated as "sell everything": the buy boundary
// collapses to zero so the position only ever alerts on the sell side.
var minBalanceTarget = decimal.NewFromInt(10)

var one = decimal.NewFromInt(1)

// Value is the current market value of the position
func (b *Balance) Value() decimal.Decimal {
	if b.Amount == nil {
		return decimal.Zero
	}
	return b.Amount.Mul(b.Price)
}

// BuyBoundary is the value below which a buy alert fires
func (b *Balance) BuyBoundary() decimal.Decimal {
	if b.BalanceTarget.LessThan(minBalanceTarget) {
		return decimal.Zero
	}
	return b.BalanceTarget.Mul(one.Sub(b.BuyTargetRatio))
}

// SellBoundary is the value above which a sell alert fires
func (b *Balance) SellBoundary() decimal.Decimal {
	return b.BalanceTarget.Mul(one.Add(b.SellTargetRatio))
}

// BuyLimit is the buy boundary expressed as an implied per-unit price, for
// placing a limit order on the exchange. Zero when no units are held.
func (b *Balance) BuyLimit() decimal.Decimal {
	if b.Amount == nil || b.Amount.IsZero() {
		return decimal.Zero
	}
	return b.BuyBoundary().Div(*b.Amount)
}

// SellLimit is the sell boundary expressed as an implied per-unit price
func (b *Balance) SellLimit() decimal.Decimal {
	if b.Amount == nil || b.Amount.IsZero() {
		return decimal.Zero
	}
	return b.SellBoundary().Div(*b.Amount)
}

// AdjustAmount adds delta to the held quantity, treating nil as zero
func (b *Balance) AdjustAmount(delta decimal.Decimal) {
	if b.Amount == nil {
		b.Amount = &delta
		return
	}
	sum := b.Amount.Add(delta)
	b.Amount = &sum
}
