package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/inventory"
)

func carton(stock, dailyLimit int) inventory.Product {
	return inventory.Product{
		ID:              "p-1",
		Name:            "Indomie Goreng",
		PackageLabel:    "dus",
		UnitsPerPackage: 12,
		SalePrice:       120_000,
		Stock:           stock,
		DailyLimit:      dailyLimit,
	}
}

func TestValidateDailyLimitScenario(t *testing.T) {
	p := carton(15, 20)
	res := inventory.Validate(inventory.Request{Product: p, Packages: 1, NewLine: true}, inventory.Ledger{"p-1": 10}, nil)

	require.Equal(t, inventory.Clamped, res.Outcome)
	require.Equal(t, 0, res.Packages)
	require.Equal(t, 10, res.LooseUnits)
	require.Equal(t, 10, res.TotalUnits)
	require.Equal(t, inventory.ConstraintDailyLimit, res.Reason)
	require.Contains(t, res.Warning, "daily limit")
}

func TestValidateAcceptsWithinCeiling(t *testing.T) {
	p := carton(100, 0)
	res := inventory.Validate(inventory.Request{Product: p, Packages: 2, LooseUnits: 3}, nil, nil)
	require.Equal(t, inventory.Accepted, res.Outcome)
	require.Equal(t, 2, res.Packages)
	require.Equal(t, 3, res.LooseUnits)
	require.Equal(t, 27, res.TotalUnits)
	require.Equal(t, 73, res.Remaining)
	require.Empty(t, res.Warning)
}

func TestValidateStockBinding(t *testing.T) {
	p := carton(30, 0)
	res := inventory.Validate(inventory.Request{Product: p, Packages: 3}, nil, nil)
	require.Equal(t, inventory.Clamped, res.Outcome)
	require.Equal(t, inventory.ConstraintStock, res.Reason)
	require.Equal(t, 2, res.Packages)
	require.Equal(t, 6, res.LooseUnits)
	require.Contains(t, res.Warning, "30 units in stock")
}

func TestValidateRejectsNewLineWhenNothingLeft(t *testing.T) {
	res := inventory.Validate(inventory.Request{Product: carton(0, 0), Packages: 1, NewLine: true}, nil, nil)
	require.Equal(t, inventory.Rejected, res.Outcome)
	require.Equal(t, inventory.ConstraintStock, res.Reason)
	require.Zero(t, res.TotalUnits)
	require.Contains(t, res.Warning, "out of stock")

	limited := inventory.Validate(inventory.Request{Product: carton(50, 24), LooseUnits: 1, NewLine: true}, inventory.Ledger{"p-1": 24}, nil)
	require.Equal(t, inventory.Rejected, limited.Outcome)
	require.Equal(t, inventory.ConstraintDailyLimit, limited.Reason)
}

func TestValidateExistingLineClampsToZero(t *testing.T) {
	res := inventory.Validate(inventory.Request{Product: carton(0, 0), Packages: 1}, nil, nil)
	require.Equal(t, inventory.Clamped, res.Outcome)
	require.Zero(t, res.Packages)
	require.Zero(t, res.LooseUnits)
}

func TestValidateCountsOtherLines(t *testing.T) {
	res := inventory.Validate(inventory.Request{Product: carton(20, 0), Packages: 1, OtherReserved: 15}, nil, nil)
	require.Equal(t, inventory.Clamped, res.Outcome)
	require.Equal(t, 5, res.TotalUnits)
}

func TestValidateNormalizesNegativeAndOverflow(t *testing.T) {
	res := inventory.Validate(inventory.Request{Product: carton(100, 0), Packages: -2, LooseUnits: 30}, nil, nil)
	require.Equal(t, inventory.Accepted, res.Outcome)
	require.Equal(t, 2, res.Packages)
	require.Equal(t, 6, res.LooseUnits)
}

func TestValidateEditBaseline(t *testing.T) {
	// The order under edit holds 12 units: stock already excludes them and the
	// ledger already includes them.
	p := carton(5, 20)
	baseline := inventory.Baseline{"p-1": 12}
	ledger := inventory.Ledger{"p-1": 12}

	res := inventory.Validate(inventory.Request{Product: p, Packages: 1}, ledger, baseline)
	require.Equal(t, inventory.Accepted, res.Outcome)

	ceiling := inventory.CeilingFor(p, ledger, baseline)
	require.Equal(t, 17, ceiling.Available)
	require.Zero(t, ceiling.SoldToday)
	require.Equal(t, 20, ceiling.AllowedByLimit)
	require.Equal(t, 17, ceiling.Max)

	withoutBaseline := inventory.Validate(inventory.Request{Product: p, Packages: 1}, ledger, nil)
	require.Equal(t, inventory.Clamped, withoutBaseline.Outcome)
}

func TestCeilingUnlimited(t *testing.T) {
	c := inventory.CeilingFor(carton(40, 0), inventory.Ledger{"p-1": 1_000}, nil)
	require.Equal(t, inventory.Unlimited, c.AllowedByLimit)
	require.Equal(t, 40, c.Max)
	require.Equal(t, inventory.ConstraintStock, c.Binding)
}

func TestValidateClampNeverExceedsCeiling(t *testing.T) {
	for _, upp := range []int{1, 6, 12} {
		for stock := 0; stock <= 40; stock += 7 {
			for limit := 0; limit <= 30; limit += 10 {
				for sold := 0; sold <= 30; sold += 9 {
					for held := 0; held <= 12; held += 6 {
						for proposed := 0; proposed <= 60; proposed += 5 {
							p := inventory.Product{ID: "x", UnitsPerPackage: upp, Stock: stock, DailyLimit: limit}
							ledger := inventory.Ledger{"x": sold}
							baseline := inventory.Baseline{"x": held}
							res := inventory.Validate(inventory.Request{Product: p, LooseUnits: proposed}, ledger, baseline)

							ceiling := stock + held
							if limit > 0 {
								ceiling = min(ceiling, max(limit-max(sold-held, 0), 0))
							}
							require.LessOrEqual(t, res.TotalUnits, ceiling)
							require.GreaterOrEqual(t, res.Packages, 0)
							require.GreaterOrEqual(t, res.LooseUnits, 0)
							if upp > 1 {
								require.Less(t, res.LooseUnits, upp)
							}
							if proposed <= ceiling {
								require.Equal(t, inventory.Accepted, res.Outcome)
								require.Equal(t, proposed, res.TotalUnits)
							} else {
								require.Equal(t, ceiling, res.TotalUnits)
							}
						}
					}
				}
			}
		}
	}
}

func TestValidateHugeQuantityClampsToStock(t *testing.T) {
	res := inventory.Validate(inventory.Request{Product: carton(1000, 0), Packages: 1537228672809129302, NewLine: true}, nil, nil)

	require.Equal(t, inventory.Clamped, res.Outcome)
	require.Equal(t, 1000, res.TotalUnits)
	require.Equal(t, 83, res.Packages)
	require.Equal(t, 4, res.LooseUnits)
	require.Equal(t, inventory.ConstraintStock, res.Reason)
	require.NotEmpty(t, res.Warning)
}
