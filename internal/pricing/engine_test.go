package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/pricing"
)

func TestComputeItemDiscountsPackagesOnly(t *testing.T) {
	totals := pricing.ComputeItem(pricing.Item{
		PackagePrice:       120_000,
		UnitsPerPackage:    12,
		Packages:           1,
		LooseUnits:         5,
		PerPackageDiscount: 5_000,
	})
	require.Equal(t, 17, totals.TotalUnits)
	require.Equal(t, pricing.Money(170_000), totals.Gross)
	require.Equal(t, pricing.Money(5_000), totals.Discount)
	require.Equal(t, pricing.Money(165_000), totals.Total)

	looseOnly := pricing.ComputeItem(pricing.Item{
		PackagePrice:       120_000,
		UnitsPerPackage:    12,
		LooseUnits:         11,
		PerPackageDiscount: 5_000,
	})
	require.Zero(t, looseOnly.Discount, "loose units never carry the per-package discount")
	require.Equal(t, pricing.Money(110_000), looseOnly.Total)
}

func TestComputeItemRoundsUnitPrice(t *testing.T) {
	totals := pricing.ComputeItem(pricing.Item{PackagePrice: 100_000, UnitsPerPackage: 12, LooseUnits: 1})
	require.Equal(t, pricing.Money(8_333), totals.Gross)

	totals = pricing.ComputeItem(pricing.Item{PackagePrice: 100_000, UnitsPerPackage: 12, LooseUnits: 2})
	require.Equal(t, pricing.Money(16_667), totals.Gross)
}

func TestComputeSingleUnitProduct(t *testing.T) {
	totals := pricing.ComputeItem(pricing.Item{PackagePrice: 3_500, UnitsPerPackage: 1, LooseUnits: 4})
	require.Equal(t, 4, totals.TotalUnits)
	require.Equal(t, pricing.Money(14_000), totals.Gross)

	totals = pricing.ComputeItem(pricing.Item{PackagePrice: 3_500, UnitsPerPackage: 1, LooseUnits: 4, PerPackageDiscount: 500})
	require.Equal(t, pricing.Money(2_000), totals.Discount)
	require.Equal(t, pricing.Money(12_000), totals.Total)
}

func TestComputeSummary(t *testing.T) {
	items := []pricing.Item{
		{PackagePrice: 120_000, UnitsPerPackage: 12, Packages: 1, LooseUnits: 5, PerPackageDiscount: 5_000},
		{PackagePrice: 3_500, UnitsPerPackage: 1, LooseUnits: 10},
	}
	nota := pricing.Discount{Mode: pricing.DiscountPercent, Value: 10}
	payment := pricing.Payment{Method: pricing.PaymentSplit, Cash: 100_000, Transfer: 80_000}

	summary := pricing.Compute(items, nota, payment)
	require.Equal(t, pricing.Money(205_000), summary.Subtotal)
	require.Equal(t, pricing.Money(5_000), summary.ItemDiscount)
	require.Equal(t, pricing.Money(20_000), summary.NotaDiscount, "nota percent uses subtotal net of item discount")
	require.Equal(t, pricing.Money(180_000), summary.GrandTotal)
	require.Equal(t, pricing.Money(180_000), summary.AmountPaid)
	require.Zero(t, summary.Change)
	require.Zero(t, summary.Due)
	require.Len(t, summary.Items, 2)
}

func TestComputeGrandTotalNeverNegative(t *testing.T) {
	items := []pricing.Item{{PackagePrice: 10_000, UnitsPerPackage: 1, LooseUnits: 1}}
	summary := pricing.Compute(items, pricing.Discount{Mode: pricing.DiscountAmount, Value: 50_000}, pricing.Payment{Method: pricing.PaymentCash, Amount: 5_000})
	require.Equal(t, pricing.Money(50_000), summary.NotaDiscount)
	require.Zero(t, summary.GrandTotal)
	require.Equal(t, pricing.Money(5_000), summary.Change)
}

func TestChangeAndDue(t *testing.T) {
	items := []pricing.Item{{PackagePrice: 25_000, UnitsPerPackage: 1, LooseUnits: 4}}

	paid := pricing.Compute(items, pricing.Discount{}, pricing.Payment{Method: pricing.PaymentCash, Amount: 120_000})
	require.Equal(t, pricing.Money(20_000), paid.Change)
	require.Zero(t, paid.Due)

	short := pricing.Compute(items, pricing.Discount{}, pricing.Payment{Method: pricing.PaymentTransfer, Amount: 60_000})
	require.Zero(t, short.Change)
	require.Equal(t, pricing.Money(40_000), short.Due)
}

func TestPaymentPaid(t *testing.T) {
	require.Equal(t, pricing.Money(70_000), pricing.Payment{Method: pricing.PaymentCash, Amount: 70_000, Cash: 1, Transfer: 2}.Paid())
	require.Equal(t, pricing.Money(30), pricing.Payment{Method: pricing.PaymentSplit, Amount: 999, Cash: 10, Transfer: 20}.Paid())
	require.Zero(t, pricing.Payment{Method: pricing.PaymentTransfer, Amount: -5}.Paid())
}

func TestNotaPercentMonotonicity(t *testing.T) {
	items := []pricing.Item{
		{PackagePrice: 87_500, UnitsPerPackage: 24, Packages: 3, LooseUnits: 7, PerPackageDiscount: 1_250},
		{PackagePrice: 4_200, UnitsPerPackage: 1, LooseUnits: 13},
	}
	previous := pricing.Compute(items, pricing.Discount{Mode: pricing.DiscountPercent}, pricing.Payment{}).GrandTotal
	for pct := int64(1); pct <= 100; pct++ {
		current := pricing.Compute(items, pricing.Discount{Mode: pricing.DiscountPercent, Value: pct}, pricing.Payment{}).GrandTotal
		require.LessOrEqual(t, current, previous, "pct=%d", pct)
		previous = current
	}
	require.Zero(t, previous)
}
