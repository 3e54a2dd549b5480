package quantity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/quantity"
)

func TestRoundTripConversion(t *testing.T) {
	for _, upp := range []int{1, 2, 6, 12, 24, 40} {
		for total := 0; total <= 500; total++ {
			packages, loose := quantity.FromTotalUnits(total, upp)
			require.Equal(t, total, quantity.ToTotalUnits(packages, loose, upp), "upp=%d total=%d", upp, total)
			require.GreaterOrEqual(t, packages, 0)
			require.GreaterOrEqual(t, loose, 0)
			if upp > 1 {
				require.Less(t, loose, upp)
			} else {
				require.Zero(t, packages)
			}
		}
	}
}

func TestFromTotalUnitsSingleUnitProduct(t *testing.T) {
	packages, loose := quantity.FromTotalUnits(37, 1)
	require.Equal(t, 0, packages)
	require.Equal(t, 37, loose)

	packages, loose = quantity.FromTotalUnits(5, 0)
	require.Equal(t, 0, packages)
	require.Equal(t, 5, loose)
}

func TestNormalizeCarriesAndClamps(t *testing.T) {
	tests := []struct {
		name              string
		packages, loose   int
		upp               int
		wantPkg, wantLoos int
	}{
		{name: "carry loose into packages", packages: 1, loose: 14, upp: 12, wantPkg: 2, wantLoos: 2},
		{name: "negative packages", packages: -3, loose: 4, upp: 12, wantPkg: 0, wantLoos: 4},
		{name: "negative loose", packages: 2, loose: -1, upp: 12, wantPkg: 2, wantLoos: 0},
		{name: "single unit folds packages", packages: 3, loose: 2, upp: 1, wantPkg: 0, wantLoos: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, loose := quantity.Normalize(tt.packages, tt.loose, tt.upp)
			require.Equal(t, tt.wantPkg, pkg)
			require.Equal(t, tt.wantLoos, loose)
		})
	}
}

func TestLineWeight(t *testing.T) {
	require.InDelta(t, 6.0, quantity.LineWeight(0.5, 12), 1e-9)
	require.Zero(t, quantity.LineWeight(0, 12))
	require.Zero(t, quantity.LineWeight(0.5, 0))
	require.Zero(t, quantity.LineWeight(0.5, -2))
}

func TestMinAddable(t *testing.T) {
	require.Equal(t, 12, quantity.MinAddable(12))
	require.Equal(t, 1, quantity.MinAddable(1))
	require.Equal(t, 1, quantity.MinAddable(0))
}

func TestToTotalUnitsSaturates(t *testing.T) {
	require.Equal(t, quantity.MaxUnits, quantity.ToTotalUnits(1537228672809129302, 0, 12))
	require.Equal(t, quantity.MaxUnits, quantity.ToTotalUnits(1, 1<<62, 12))
	require.Equal(t, quantity.MaxUnits, quantity.ToTotalUnits(2, 0, 1<<40))

	packages, loose := quantity.Normalize(1537228672809129302, 5, 12)
	require.Equal(t, quantity.MaxUnits/12, packages)
	require.Equal(t, quantity.MaxUnits%12, loose)
	require.Equal(t, 0, quantity.Clamp(-3))
	require.Equal(t, quantity.MaxUnits, quantity.Clamp(1<<62))
}
