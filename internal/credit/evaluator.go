package credit

import (
	"fmt"

	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Status is the payment state of an order.
type Status string

const (
	StatusPaid     Status = "PAID"
	StatusOnCredit Status = "ON_CREDIT"
)

// Reason codes attached to advisories and blocks.
const (
	ReasonUnregisteredCustomer = "unregistered_customer"
	ReasonLimitExceeded        = "limit_exceeded"
)

// Input is what the evaluator needs from a priced order.
type Input struct {
	GrandTotal   pricing.Money
	AmountPaid   pricing.Money
	Customer     *Customer
	CustomerName string
	Policy       Policy
}

// Notice is a reason code with a message suitable for the cashier.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verdict is the evaluator output.
type Verdict struct {
	Status          Status        `json:"status"`
	Change          pricing.Money `json:"change"`
	Shortfall       pricing.Money `json:"shortfall"`
	Eligible        bool          `json:"eligible"`
	DueDateRequired bool          `json:"dueDateRequired"`
	Advisories      []Notice      `json:"advisories,omitempty"`
	Blocks          []Notice      `json:"blocks,omitempty"`
}

// Evaluate determines the payment status and checkout eligibility.
func Evaluate(in Input) Verdict {
	if in.AmountPaid >= in.GrandTotal {
		return Verdict{
			Status:   StatusPaid,
			Change:   in.AmountPaid - in.GrandTotal,
			Eligible: true,
		}
	}

	v := Verdict{
		Status:          StatusOnCredit,
		Shortfall:       in.GrandTotal - in.AmountPaid,
		Eligible:        true,
		DueDateRequired: true,
	}

	if in.Customer == nil || in.Customer.ID == "" {
		v.Eligible = false
		v.Blocks = append(v.Blocks, Notice{
			Code:    ReasonUnregisteredCustomer,
			Message: unregisteredMessage(in.CustomerName),
		})
		return v
	}

	c := *in.Customer
	if c.Limit > 0 && v.Shortfall > c.Remaining() {
		notice := Notice{
			Code: ReasonLimitExceeded,
			Message: fmt.Sprintf("%s: debt of %d exceeds remaining credit %d (limit %d, outstanding %d)",
				displayName(c), v.Shortfall, c.Remaining(), c.Limit, c.Debt),
		}
		if in.Policy == BlockOnExceed {
			v.Eligible = false
			v.Blocks = append(v.Blocks, notice)
		} else {
			v.Advisories = append(v.Advisories, notice)
		}
	}
	return v
}

// HasAdvisory reports whether code is among the advisories.
func (v Verdict) HasAdvisory(code string) bool {
	for _, n := range v.Advisories {
		if n.Code == code {
			return true
		}
	}
	return false
}

func unregisteredMessage(name string) string {
	if name == "" {
		return "a credit sale requires a registered customer"
	}
	return fmt.Sprintf("%q is not a registered customer and cannot carry debt", name)
}

func displayName(c Customer) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
