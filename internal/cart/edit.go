package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// ErrProductNotFound is returned when a product is missing from the catalog.
var ErrProductNotFound = errors.New("product not found")

// PersistedLine is a committed order line.
type PersistedLine struct {
	ProductID          string        `json:"productId"`
	Packages           int           `json:"packages"`
	LooseUnits         int           `json:"looseUnits"`
	TotalUnits         int           `json:"totalUnits"`
	UnitPrice          pricing.Money `json:"unitPrice"`
	PerPackageDiscount pricing.Money `json:"perPackageDiscount"`
}

// PersistedOrder is a committed order loaded for editing.
type PersistedOrder struct {
	ID           string           `json:"id"`
	Channel      Channel          `json:"channel"`
	Lines        []PersistedLine  `json:"lines"`
	NotaDiscount pricing.Discount `json:"notaDiscount"`
	Payment      pricing.Payment  `json:"payment"`
	GrandTotal   pricing.Money    `json:"grandTotal"`
	DueDate      *time.Time       `json:"dueDate,omitempty"`
	CustomerID   string           `json:"customerId,omitempty"`
	CustomerName string           `json:"customerName,omitempty"`
}

// Due is the unpaid part of the persisted order.
func (p PersistedOrder) Due() pricing.Money {
	return max(p.GrandTotal-p.Payment.Paid(), 0)
}

// Baseline is the stock the persisted order already holds.
func (p PersistedOrder) Baseline() inventory.Baseline {
	res := make([]inventory.Reservation, 0, len(p.Lines))
	for _, l := range p.Lines {
		res = append(res, inventory.Reservation{ProductID: l.ProductID, TotalUnits: l.TotalUnits})
	}
	return inventory.BaselineFrom(res)
}

// Rehydrate rebuilds a cart from a persisted order. The baseline is fixed
// before any line is placed so the order's own units never count against it.
// Quantities and prices are restored as committed, without re-validation.
// Lines of one product merge only when they were charged alike; otherwise
// they stay separate so the rebuilt totals match the committed ones.
func Rehydrate(cartID string, persisted PersistedOrder, products map[string]inventory.Product, customer *credit.Customer) (Order, error) {
	o := New(cartID, persisted.Channel)
	o.EditingOrderID = persisted.ID
	o.Baseline = persisted.Baseline()
	o.PriorDue = persisted.Due()
	o.PriorCustomerID = persisted.CustomerID

	for _, pl := range persisted.Lines {
		p, ok := products[pl.ProductID]
		if !ok {
			return Order{}, fmt.Errorf("rehydrate %s: %w", pl.ProductID, ErrProductNotFound)
		}
		l := lineFromProduct(p)
		l.Packages, l.LooseUnits = pl.Packages, pl.LooseUnits
		l.Price = max(pl.UnitPrice, 0)
		l.CatalogPrice = max(p.SalePrice, l.Price)
		if pl.PerPackageDiscount > 0 {
			l.Discount = pricing.Discount{Mode: pricing.DiscountAmount, Value: pl.PerPackageDiscount}
		}
		if i := mergeTarget(o.Lines, l); i >= 0 {
			o.Lines[i].Packages += l.Packages
			o.Lines[i].LooseUnits += l.LooseUnits
			continue
		}
		o.Lines = append(o.Lines, l)
	}
	o.NotaDiscount = persisted.NotaDiscount
	o.Payment = persisted.Payment
	if persisted.DueDate != nil {
		d := *persisted.DueDate
		o.DueDate = &d
	}
	if customer != nil {
		c := *customer
		o.Customer = &c
		o.CustomerName = c.Name
	} else {
		o.CustomerName = persisted.CustomerName
	}
	return o.recalc(), nil
}

func mergeTarget(lines []Line, l Line) int {
	for i, existing := range lines {
		if existing.ProductID == l.ProductID && existing.Price == l.Price && existing.Discount == l.Discount {
			return i
		}
	}
	return -1
}
