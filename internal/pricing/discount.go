package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountMode selects how a discount value is interpreted.
type DiscountMode string

const (
	DiscountAmount  DiscountMode = "amount"
	DiscountPercent DiscountMode = "percent"
)

// ParseDiscountMode converts free text into a mode, defaulting to amount.
func ParseDiscountMode(value string) DiscountMode {
	if strings.EqualFold(strings.TrimSpace(value), string(DiscountPercent)) {
		return DiscountPercent
	}
	return DiscountAmount
}

// Discount is either a fixed amount or a whole-number percentage.
type Discount struct {
	Mode  DiscountMode `json:"mode"`
	Value int64        `json:"value"`
}

// Normalize clamps percentages into [0,100] and amounts at zero.
func (d Discount) Normalize() Discount {
	if d.Mode != DiscountPercent {
		d.Mode = DiscountAmount
	}
	if d.Value < 0 {
		d.Value = 0
	}
	if d.Mode == DiscountPercent && d.Value > 100 {
		d.Value = 100
	}
	return d
}

// Resolve returns the monetary value of the discount against base. Amount
// discounts are returned as entered; callers floor the resulting totals.
func (d Discount) Resolve(base Money) Money {
	d = d.Normalize()
	if d.Mode == DiscountAmount {
		return d.Value
	}
	if base <= 0 || d.Value == 0 {
		return 0
	}
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(d.Value)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// SwitchMode converts the discount into the requested mode while keeping its
// monetary effect against base. Integer rounding makes the round trip lossy.
func (d Discount) SwitchMode(mode DiscountMode, base Money) Discount {
	d = d.Normalize()
	if mode != DiscountPercent {
		mode = DiscountAmount
	}
	if d.Mode == mode {
		return d
	}
	if mode == DiscountAmount {
		return Discount{Mode: DiscountAmount, Value: d.Resolve(base)}
	}
	if base <= 0 {
		return Discount{Mode: DiscountPercent}
	}
	pct := decimal.NewFromInt(d.Value).
		Div(decimal.NewFromInt(base)).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	return Discount{Mode: DiscountPercent, Value: pct}.Normalize()
}
