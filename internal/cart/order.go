package cart

import (
	"slices"
	"time"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/pricing"
	"github.com/noah-isme/toko-kasir/internal/quantity"
)

// Channel identifies which point of sale a cart belongs to.
type Channel string

const (
	ChannelAdmin Channel = "admin"
	ChannelKasir Channel = "kasir"
	ChannelSales Channel = "sales"
)

// ParseChannel validates a channel name. Empty input selects the kasir channel.
func ParseChannel(value string) (Channel, bool) {
	switch Channel(value) {
	case "":
		return ChannelKasir, true
	case ChannelAdmin, ChannelKasir, ChannelSales:
		return Channel(value), true
	default:
		return "", false
	}
}

// Line is one product in the cart. Quantity fields are inputs; the fields
// after TotalUnits are derived on every transition.
type Line struct {
	ProductID       string           `json:"productId"`
	Name            string           `json:"name"`
	PackageLabel    string           `json:"packageLabel,omitempty"`
	UnitsPerPackage int              `json:"unitsPerPackage"`
	CatalogPrice    pricing.Money    `json:"catalogPrice"`
	Price           pricing.Money    `json:"price"`
	Packages        int              `json:"packages"`
	LooseUnits      int              `json:"looseUnits"`
	Discount        pricing.Discount `json:"discount"`
	WeightPerUnit   float64          `json:"weightPerUnit,omitempty"`

	TotalUnits         int           `json:"totalUnits"`
	PerPackageDiscount pricing.Money `json:"perPackageDiscount"`
	Gross              pricing.Money `json:"gross"`
	LineDiscount       pricing.Money `json:"lineDiscount"`
	Total              pricing.Money `json:"total"`
	Weight             float64       `json:"weight"`
}

// Order is an in-progress sale. Every transition returns a new Order; the
// receiver is never modified.
type Order struct {
	ID      string  `json:"id"`
	Channel Channel `json:"channel"`

	// EditingOrderID is set when the cart rehydrates a persisted order.
	EditingOrderID string `json:"editingOrderId,omitempty"`
	// Baseline is frozen when the edit session starts.
	Baseline inventory.Baseline `json:"baseline,omitempty"`
	// PriorDue is the unpaid amount of the order being edited, already part
	// of the customer's debt.
	PriorDue pricing.Money `json:"priorDue,omitempty"`
	// PriorCustomerID owes PriorDue. Other customers get no credit for it.
	PriorCustomerID string `json:"priorCustomerId,omitempty"`

	Lines        []Line           `json:"lines"`
	NotaDiscount pricing.Discount `json:"notaDiscount"`
	Payment      pricing.Payment  `json:"payment"`
	DueDate      *time.Time       `json:"dueDate,omitempty"`
	Customer     *credit.Customer `json:"customer,omitempty"`
	CustomerName string           `json:"customerName,omitempty"`

	Summary pricing.Summary `json:"summary"`
}

// Warning reports a quantity the cart corrected.
type Warning struct {
	ProductID string               `json:"productId"`
	Outcome   inventory.Outcome    `json:"outcome"`
	Reason    inventory.Constraint `json:"reason,omitempty"`
	Message   string               `json:"message"`
}

// New returns an empty cart for channel.
func New(id string, channel Channel) Order {
	return Order{ID: id, Channel: channel, Lines: []Line{}, NotaDiscount: pricing.Discount{Mode: pricing.DiscountAmount}}
}

// Editing reports whether the cart edits a persisted order.
func (o Order) Editing() bool { return o.EditingOrderID != "" }

// Line returns the line for productID.
func (o Order) Line(productID string) (Line, bool) {
	i := o.indexOf(productID)
	if i < 0 {
		return Line{}, false
	}
	return o.Lines[i], true
}

// ProductIDs lists the products in line order.
func (o Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Reservations lists the units each line holds.
func (o Order) Reservations() []inventory.Reservation {
	out := make([]inventory.Reservation, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, inventory.Reservation{ProductID: l.ProductID, TotalUnits: l.TotalUnits})
	}
	return out
}

func (o Order) indexOf(productID string) int {
	return slices.IndexFunc(o.Lines, func(l Line) bool { return l.ProductID == productID })
}

func (o Order) clone() Order {
	out := o
	out.Lines = slices.Clone(o.Lines)
	if out.Lines == nil {
		out.Lines = []Line{}
	}
	out.Baseline = o.Baseline.Clone()
	if o.Customer != nil {
		c := *o.Customer
		out.Customer = &c
	}
	if o.DueDate != nil {
		d := *o.DueDate
		out.DueDate = &d
	}
	return out
}

// recalc refreshes every derived field from the inputs.
func (o Order) recalc() Order {
	items := make([]pricing.Item, len(o.Lines))
	for i := range o.Lines {
		l := &o.Lines[i]
		l.UnitsPerPackage = quantity.Units(l.UnitsPerPackage)
		l.Packages, l.LooseUnits = quantity.Normalize(l.Packages, l.LooseUnits, l.UnitsPerPackage)
		l.Discount = l.Discount.Normalize()
		l.PerPackageDiscount = min(l.Discount.Resolve(l.Price), max(l.Price, 0))
		items[i] = pricing.Item{
			PackagePrice:       l.Price,
			UnitsPerPackage:    l.UnitsPerPackage,
			Packages:           l.Packages,
			LooseUnits:         l.LooseUnits,
			PerPackageDiscount: l.PerPackageDiscount,
		}
	}
	o.NotaDiscount = o.NotaDiscount.Normalize()
	o.Summary = pricing.Compute(items, o.NotaDiscount, o.Payment)
	for i, totals := range o.Summary.Items {
		l := &o.Lines[i]
		l.TotalUnits = totals.TotalUnits
		l.Gross = totals.Gross
		l.LineDiscount = totals.Discount
		l.Total = totals.Total
		l.Weight = quantity.LineWeight(l.WeightPerUnit, totals.TotalUnits)
	}
	return o
}

// Weight is the total weight of all lines.
func (o Order) Weight() float64 {
	var w float64
	for _, l := range o.Lines {
		w += l.Weight
	}
	return w
}
