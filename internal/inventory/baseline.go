package inventory

import "maps"

// Reservation is a persisted order line reduced to what reconciliation needs.
type Reservation struct {
	ProductID  string
	TotalUnits int
}

// Baseline maps product id to the units an order under edit already holds.
// It is computed once when the order is loaded and stays fixed for the edit
// session.
type Baseline map[string]int

// BaselineFrom sums the reserved units per product across all lines.
func BaselineFrom(lines []Reservation) Baseline {
	baseline := make(Baseline, len(lines))
	for _, line := range lines {
		if line.ProductID == "" || line.TotalUnits <= 0 {
			continue
		}
		baseline[line.ProductID] += line.TotalUnits
	}
	return baseline
}

// Of returns the baseline for productID.
func (b Baseline) Of(productID string) int {
	if b == nil {
		return 0
	}
	return max(b[productID], 0)
}

// Clone returns an independent copy.
func (b Baseline) Clone() Baseline {
	if b == nil {
		return nil
	}
	return maps.Clone(b)
}
