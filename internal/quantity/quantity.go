// Package quantity converts between package/loose-unit pairs and base units.
//
// A product sold in packages (dus) of N base units (pcs) is tracked as a
// (packages, looseUnits) pair where looseUnits < N. Single-unit products
// (N <= 1) carry their whole quantity in looseUnits and always report zero
// packages.
package quantity

// MaxUnits bounds every quantity the package handles. Conversions saturate
// at it instead of overflowing.
const MaxUnits = 1_000_000_000

// Units returns a normalised units-per-package value. Anything below one is
// treated as a single-unit product.
func Units(unitsPerPackage int) int {
	if unitsPerPackage < 1 {
		return 1
	}
	return min(unitsPerPackage, MaxUnits)
}

// Clamp bounds v to [0, MaxUnits].
func Clamp(v int) int {
	return min(max(v, 0), MaxUnits)
}

// ToTotalUnits converts a package/loose pair into base units, saturating at
// MaxUnits in either direction.
func ToTotalUnits(packages, looseUnits, unitsPerPackage int) int {
	packages = min(max(packages, -MaxUnits), MaxUnits)
	looseUnits = min(max(looseUnits, -MaxUnits), MaxUnits)
	total := packages*Units(unitsPerPackage) + looseUnits
	return min(max(total, -MaxUnits), MaxUnits)
}

// FromTotalUnits splits base units into packages and loose units.
func FromTotalUnits(total, unitsPerPackage int) (packages, looseUnits int) {
	if total < 0 {
		total = 0
	}
	if unitsPerPackage <= 1 {
		return 0, total
	}
	return total / unitsPerPackage, total % unitsPerPackage
}

// Normalize clamps both fields at zero and re-derives them so the loose-unit
// bound holds (loose units overflowing a package are carried into packages).
func Normalize(packages, looseUnits, unitsPerPackage int) (int, int) {
	if packages < 0 {
		packages = 0
	}
	if looseUnits < 0 {
		looseUnits = 0
	}
	return FromTotalUnits(ToTotalUnits(packages, looseUnits, unitsPerPackage), unitsPerPackage)
}

// MinAddable is the smallest quantity the package field can add: one package
// for multi-unit products, one unit otherwise.
func MinAddable(unitsPerPackage int) int {
	return Units(unitsPerPackage)
}

// LineWeight is the shipped weight of totalUnits base units.
func LineWeight(weightPerUnit float64, totalUnits int) float64 {
	if weightPerUnit <= 0 || totalUnits <= 0 {
		return 0
	}
	return weightPerUnit * float64(totalUnits)
}
