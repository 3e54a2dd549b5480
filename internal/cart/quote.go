package cart

import (
	"fmt"
	"time"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Problem codes that block checkout besides the credit blocks.
const (
	ProblemEmptyCart       = "empty_cart"
	ProblemZeroQuantity    = "zero_quantity"
	ProblemDueDateRequired = "due_date_required"
)

// Quote is the priced view of a cart with its credit verdict.
type Quote struct {
	Summary pricing.Summary `json:"summary"`
	Verdict credit.Verdict  `json:"credit"`
}

// Quote evaluates the cart under policy. When editing, the debt of the
// customer who owed the edited order excludes what that order still owes.
func (o Order) Quote(policy credit.Policy) Quote {
	var customer *credit.Customer
	if o.Customer != nil {
		c := *o.Customer
		if o.PriorCustomerID != "" && c.ID == o.PriorCustomerID {
			c.Debt = max(c.Debt-o.PriorDue, 0)
		}
		customer = &c
	}
	return Quote{
		Summary: o.Summary,
		Verdict: credit.Evaluate(credit.Input{
			GrandTotal:   o.Summary.GrandTotal,
			AmountPaid:   o.Summary.AmountPaid,
			Customer:     customer,
			CustomerName: o.CustomerName,
			Policy:       policy,
		}),
	}
}

// Problems lists every reason the cart cannot be checked out yet.
func (o Order) Problems(q Quote) []credit.Notice {
	var out []credit.Notice
	if len(o.Lines) == 0 {
		out = append(out, credit.Notice{Code: ProblemEmptyCart, Message: "cart is empty"})
	}
	for _, l := range o.Lines {
		if l.TotalUnits <= 0 {
			out = append(out, credit.Notice{
				Code:    ProblemZeroQuantity,
				Message: fmt.Sprintf("%s has no quantity", l.Name),
			})
		}
	}
	out = append(out, q.Verdict.Blocks...)
	if q.Verdict.DueDateRequired && o.DueDate == nil {
		out = append(out, credit.Notice{Code: ProblemDueDateRequired, Message: "due date is required for a credit sale"})
	}
	return out
}

// PayloadItem is one committed line.
type PayloadItem struct {
	ProductID          string        `json:"productId"`
	Packages           int           `json:"packages"`
	LooseUnits         int           `json:"looseUnits"`
	TotalUnits         int           `json:"totalUnits"`
	UnitPrice          pricing.Money `json:"unitPrice"`
	PerPackageDiscount pricing.Money `json:"perPackageDiscount"`
	Weight             float64       `json:"weight"`
}

// Payload is what a checked-out cart hands to order persistence.
type Payload struct {
	Items              []PayloadItem         `json:"items"`
	NotaDiscountAmount pricing.Money         `json:"notaDiscountAmount"`
	PaymentMethod      pricing.PaymentMethod `json:"paymentMethod"`
	AmountPaid         *pricing.Money        `json:"amountPaid,omitempty"`
	Cash               *pricing.Money        `json:"cash,omitempty"`
	Transfer           *pricing.Money        `json:"transfer,omitempty"`
	CustomerID         string                `json:"customerId,omitempty"`
	CustomerName       string                `json:"customerName,omitempty"`
	DueDate            string                `json:"dueDate,omitempty"`
}

// Payload converts the cart into its persistence form. UnitPrice is the
// package price actually charged.
func (o Order) Payload() Payload {
	p := Payload{
		Items:              make([]PayloadItem, 0, len(o.Lines)),
		NotaDiscountAmount: o.Summary.NotaDiscount,
		PaymentMethod:      o.Payment.Method,
		CustomerName:       o.CustomerName,
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = pricing.PaymentCash
	}
	for _, l := range o.Lines {
		p.Items = append(p.Items, PayloadItem{
			ProductID:          l.ProductID,
			Packages:           l.Packages,
			LooseUnits:         l.LooseUnits,
			TotalUnits:         l.TotalUnits,
			UnitPrice:          l.Price,
			PerPackageDiscount: l.PerPackageDiscount,
			Weight:             l.Weight,
		})
	}
	if p.PaymentMethod == pricing.PaymentSplit {
		cash, transfer := o.Payment.Cash, o.Payment.Transfer
		p.Cash, p.Transfer = &cash, &transfer
	} else {
		amount := o.Summary.AmountPaid
		p.AmountPaid = &amount
	}
	if o.Customer != nil {
		p.CustomerID = o.Customer.ID
		p.CustomerName = o.Customer.Name
	}
	if o.DueDate != nil {
		p.DueDate = o.DueDate.Format(time.DateOnly)
	}
	return p
}
