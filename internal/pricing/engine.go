package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-kasir/internal/quantity"
)

// Money represents a monetary value in whole rupiah.
type Money = int64

// PaymentMethod enumerates how the customer settles the order.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentSplit    PaymentMethod = "SPLIT"
)

// Valid reports whether the method is one of the known values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentSplit:
		return true
	default:
		return false
	}
}

// Payment captures what the customer hands over. Amount is used for cash or
// transfer payments; Cash and Transfer are summed for split payments.
type Payment struct {
	Method   PaymentMethod `json:"method"`
	Amount   Money         `json:"amount"`
	Cash     Money         `json:"cash"`
	Transfer Money         `json:"transfer"`
}

// Paid returns the total amount tendered.
func (p Payment) Paid() Money {
	var paid Money
	if p.Method == PaymentSplit {
		paid = nonNegative(p.Cash) + nonNegative(p.Transfer)
	} else {
		paid = nonNegative(p.Amount)
	}
	return paid
}

// Item describes one cart line used for pricing.
type Item struct {
	PackagePrice       Money
	UnitsPerPackage    int
	Packages           int
	LooseUnits         int
	PerPackageDiscount Money
}

// ItemTotals holds the derived money figures for a line.
type ItemTotals struct {
	TotalUnits int
	Gross      Money
	Discount   Money
	Total      Money
}

// ComputeItem prices a single line. The per-package discount only applies to
// whole packages; loose units are always sold at the undiscounted unit price.
// A single-unit product has no loose remainder, so every unit is discounted.
func ComputeItem(it Item) ItemTotals {
	upp := quantity.Units(it.UnitsPerPackage)
	packages := max(it.Packages, 0)
	loose := max(it.LooseUnits, 0)
	total := quantity.ToTotalUnits(packages, loose, upp)

	gross := decimal.NewFromInt(nonNegative(it.PackagePrice)).
		Mul(decimal.NewFromInt(int64(total))).
		Div(decimal.NewFromInt(int64(upp))).
		Round(0).
		IntPart()
	discounted := packages
	if upp == 1 {
		discounted = total
	}
	discount := nonNegative(it.PerPackageDiscount) * Money(discounted)
	return ItemTotals{
		TotalUnits: total,
		Gross:      gross,
		Discount:   discount,
		Total:      gross - discount,
	}
}

// Summary aggregates computed pricing components for an order.
type Summary struct {
	Items        []ItemTotals `json:"-"`
	Subtotal     Money        `json:"subtotal"`
	ItemDiscount Money        `json:"itemDiscount"`
	NotaDiscount Money        `json:"notaDiscount"`
	GrandTotal   Money        `json:"grandTotal"`
	AmountPaid   Money        `json:"amountPaid"`
	Change       Money        `json:"change"`
	Due          Money        `json:"due"`
}

// Compute calculates order totals. Subtotal is the gross value of all lines;
// the nota discount is resolved against the subtotal net of item discounts.
func Compute(items []Item, nota Discount, payment Payment) Summary {
	summary := Summary{Items: make([]ItemTotals, 0, len(items))}
	for _, it := range items {
		totals := ComputeItem(it)
		summary.Items = append(summary.Items, totals)
		summary.Subtotal += totals.Gross
		summary.ItemDiscount += totals.Discount
	}
	summary.NotaDiscount = nota.Resolve(NotaBase(summary.Subtotal, summary.ItemDiscount))
	summary.GrandTotal = nonNegative(summary.Subtotal - summary.ItemDiscount - summary.NotaDiscount)
	summary.AmountPaid = payment.Paid()
	summary.Change = nonNegative(summary.AmountPaid - summary.GrandTotal)
	summary.Due = nonNegative(summary.GrandTotal - summary.AmountPaid)
	return summary
}

// NotaBase is the amount a nota discount is computed against.
func NotaBase(subtotal, itemDiscount Money) Money {
	return nonNegative(subtotal - itemDiscount)
}

func nonNegative(v Money) Money {
	if v < 0 {
		return 0
	}
	return v
}
