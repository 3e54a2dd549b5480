// Package inventory holds the catalog view consumed by the order engine and
// the advisory stock/daily-limit validator.
package inventory

import (
	"context"
	"time"

	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Product is a catalog entry as seen by the order engine. It is owned by the
// inventory service and never mutated here.
type Product struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	PackageLabel    string        `json:"packageLabel"`
	UnitsPerPackage int           `json:"unitsPerPackage"`
	SalePrice       pricing.Money `json:"salePrice"`
	PurchasePrice   pricing.Money `json:"purchasePrice"`
	Stock           int           `json:"stock"`
	DailyLimit      int           `json:"dailyLimit"`
	WeightPerUnit   float64       `json:"weightPerUnit"`
}

// Ledger maps product id to base units already sold on the current day.
type Ledger map[string]int

// Of returns the quantity recorded for productID, never negative.
func (l Ledger) Of(productID string) int {
	if l == nil {
		return 0
	}
	return max(l[productID], 0)
}

// SnapshotSource loads the live figures the validator checks against.
//
// Stock returned by Products is the physical stock after every committed
// order, which means it already nets out the reservation held by an order
// that is currently being edited. The validator re-adds that reservation
// through the edit baseline.
type SnapshotSource interface {
	Products(ctx context.Context, ids []string) (map[string]Product, error)
	DailySold(ctx context.Context, day time.Time, ids []string) (Ledger, error)
}
