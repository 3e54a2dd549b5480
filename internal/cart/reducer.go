package cart

import (
	"strings"
	"time"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/pricing"
	"github.com/noah-isme/toko-kasir/internal/quantity"
)

func lineFromProduct(p inventory.Product) Line {
	return Line{
		ProductID:       p.ID,
		Name:            p.Name,
		PackageLabel:    p.PackageLabel,
		UnitsPerPackage: p.UnitsPerPackage,
		CatalogPrice:    p.SalePrice,
		Price:           p.SalePrice,
		Discount:        pricing.Discount{Mode: pricing.DiscountAmount},
		WeightPerUnit:   p.WeightPerUnit,
	}
}

// refresh copies live catalog metadata onto the line. The price charged is
// fixed when the line is added.
func (l Line) refresh(p inventory.Product) Line {
	l.Name = p.Name
	l.PackageLabel = p.PackageLabel
	l.UnitsPerPackage = p.UnitsPerPackage
	l.WeightPerUnit = p.WeightPerUnit
	return l
}

func warningFrom(productID string, res inventory.Result) []Warning {
	if res.Outcome == inventory.Accepted {
		return nil
	}
	return []Warning{{ProductID: productID, Outcome: res.Outcome, Reason: res.Reason, Message: res.Warning}}
}

// AddLine adds packages and loose units of p. Adding a product already in the
// cart grows that line instead of creating a second one.
func (o Order) AddLine(p inventory.Product, packages, looseUnits int, ledger inventory.Ledger) (Order, []Warning) {
	out := o.clone()
	if i := out.indexOf(p.ID); i >= 0 {
		l := out.Lines[i].refresh(p)
		res := inventory.Validate(inventory.Request{
			Product:    p,
			Packages:   l.Packages + quantity.Clamp(packages),
			LooseUnits: l.LooseUnits + quantity.Clamp(looseUnits),
		}, ledger, out.Baseline)
		l.Packages, l.LooseUnits = res.Packages, res.LooseUnits
		out.Lines[i] = l
		return out.recalc(), warningFrom(p.ID, res)
	}

	res := inventory.Validate(inventory.Request{
		Product:    p,
		Packages:   packages,
		LooseUnits: looseUnits,
		NewLine:    true,
	}, ledger, out.Baseline)
	if res.Outcome == inventory.Rejected {
		return o, warningFrom(p.ID, res)
	}
	l := lineFromProduct(p)
	l.Packages, l.LooseUnits = res.Packages, res.LooseUnits
	out.Lines = append(out.Lines, l)
	return out.recalc(), warningFrom(p.ID, res)
}

// SetQuantity replaces the quantity of an existing line. Unknown products
// leave the order unchanged.
func (o Order) SetQuantity(p inventory.Product, packages, looseUnits int, ledger inventory.Ledger) (Order, []Warning) {
	i := o.indexOf(p.ID)
	if i < 0 {
		return o, nil
	}
	out := o.clone()
	l := out.Lines[i].refresh(p)
	res := inventory.Validate(inventory.Request{
		Product:       p,
		Packages:      packages,
		LooseUnits:    looseUnits,
		OtherReserved: out.reservedElsewhere(i),
	}, ledger, out.Baseline)
	l.Packages, l.LooseUnits = res.Packages, res.LooseUnits
	out.Lines[i] = l
	return out.recalc(), warningFrom(p.ID, res)
}

// UpdatePackages changes the package count and keeps the loose units.
func (o Order) UpdatePackages(p inventory.Product, packages int, ledger inventory.Ledger) (Order, []Warning) {
	l, ok := o.Line(p.ID)
	if !ok {
		return o, nil
	}
	return o.SetQuantity(p, packages, l.LooseUnits, ledger)
}

// UpdateLooseUnits changes the loose units and keeps the package count. Loose
// units that fill a package roll over into it.
func (o Order) UpdateLooseUnits(p inventory.Product, looseUnits int, ledger inventory.Ledger) (Order, []Warning) {
	l, ok := o.Line(p.ID)
	if !ok {
		return o, nil
	}
	return o.SetQuantity(p, l.Packages, looseUnits, ledger)
}

// reservedElsewhere sums units of the same product held by other lines.
func (o Order) reservedElsewhere(idx int) int {
	var n int
	for i, l := range o.Lines {
		if i != idx && l.ProductID == o.Lines[idx].ProductID {
			n += l.TotalUnits
		}
	}
	return n
}

// SetLinePrice overrides the package price of a line. The price is clamped to
// [0, catalog price].
func (o Order) SetLinePrice(productID string, price pricing.Money) Order {
	i := o.indexOf(productID)
	if i < 0 {
		return o
	}
	out := o.clone()
	l := &out.Lines[i]
	l.Price = min(max(price, 0), l.CatalogPrice)
	return out.recalc()
}

// SetLineDiscount sets the per-package discount of a line.
func (o Order) SetLineDiscount(productID string, d pricing.Discount) Order {
	i := o.indexOf(productID)
	if i < 0 {
		return o
	}
	out := o.clone()
	out.Lines[i].Discount = d.Normalize()
	return out.recalc()
}

// SwitchLineDiscountMode converts a line discount between amount and percent
// of the package price, keeping its money value.
func (o Order) SwitchLineDiscountMode(productID string, mode pricing.DiscountMode) Order {
	i := o.indexOf(productID)
	if i < 0 {
		return o
	}
	out := o.clone()
	l := &out.Lines[i]
	l.Discount = l.Discount.SwitchMode(mode, l.Price)
	return out.recalc()
}

// SetNotaDiscount sets the order-level discount.
func (o Order) SetNotaDiscount(d pricing.Discount) Order {
	out := o.clone()
	out.NotaDiscount = d.Normalize()
	return out.recalc()
}

// SwitchNotaDiscountMode converts the nota discount against the current
// subtotal net of item discounts.
func (o Order) SwitchNotaDiscountMode(mode pricing.DiscountMode) Order {
	out := o.clone()
	base := pricing.NotaBase(o.Summary.Subtotal, o.Summary.ItemDiscount)
	out.NotaDiscount = o.NotaDiscount.SwitchMode(mode, base)
	return out.recalc()
}

// SetPayment records the tendered payment and the due date for any unpaid
// remainder.
func (o Order) SetPayment(p pricing.Payment, dueDate *time.Time) Order {
	out := o.clone()
	if !p.Method.Valid() {
		p.Method = pricing.PaymentCash
	}
	if p.Method == pricing.PaymentSplit {
		p.Amount = 0
	} else {
		p.Cash, p.Transfer = 0, 0
	}
	out.Payment = p
	out.DueDate = nil
	if dueDate != nil && !dueDate.IsZero() {
		d := *dueDate
		out.DueDate = &d
	}
	return out.recalc()
}

// SetCustomer attaches a registered customer.
func (o Order) SetCustomer(c credit.Customer) Order {
	out := o.clone()
	out.Customer = &c
	out.CustomerName = c.Name
	return out.recalc()
}

// SetCustomerName records a walk-in customer by name only, detaching any
// registered customer.
func (o Order) SetCustomerName(name string) Order {
	out := o.clone()
	out.Customer = nil
	out.CustomerName = strings.TrimSpace(name)
	return out.recalc()
}

// RemoveLine drops the line for productID.
func (o Order) RemoveLine(productID string) Order {
	i := o.indexOf(productID)
	if i < 0 {
		return o
	}
	out := o.clone()
	out.Lines = append(out.Lines[:i], out.Lines[i+1:]...)
	return out.recalc()
}

// Reset clears the sale but keeps the cart identity. An edit session keeps
// its baseline so the edited order can be rebuilt.
func (o Order) Reset() Order {
	out := New(o.ID, o.Channel)
	out.EditingOrderID = o.EditingOrderID
	out.Baseline = o.Baseline.Clone()
	out.PriorDue = o.PriorDue
	out.PriorCustomerID = o.PriorCustomerID
	return out.recalc()
}
