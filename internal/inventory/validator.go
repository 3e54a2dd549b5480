package inventory

import (
	"fmt"
	"math"

	"github.com/noah-isme/toko-kasir/internal/quantity"
)

// Outcome tags the validator verdict.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Clamped  Outcome = "clamped"
	Rejected Outcome = "rejected"
)

// Constraint names the ceiling that bound a clamped or rejected quantity.
type Constraint string

const (
	ConstraintNone       Constraint = ""
	ConstraintStock      Constraint = "stock"
	ConstraintDailyLimit Constraint = "daily_limit"
)

// Unlimited is the daily allowance reported for products without a limit.
const Unlimited = math.MaxInt

// Ceiling describes how many base units of a product may still be reserved.
type Ceiling struct {
	Available      int
	SoldToday      int
	AllowedByLimit int
	Max            int
	Binding        Constraint
}

// CeilingFor computes the reservation ceiling for p. The edit baseline is
// added back to stock and subtracted from the day's sold figure so an edited
// order is not penalised for its own prior reservation.
func CeilingFor(p Product, ledger Ledger, baseline Baseline) Ceiling {
	held := baseline.Of(p.ID)
	c := Ceiling{
		Available: max(p.Stock+held, 0),
		SoldToday: max(ledger.Of(p.ID)-held, 0),
	}
	c.AllowedByLimit = Unlimited
	if p.DailyLimit > 0 {
		c.AllowedByLimit = max(p.DailyLimit-c.SoldToday, 0)
	}
	c.Max = c.Available
	c.Binding = ConstraintStock
	if c.AllowedByLimit < c.Available {
		c.Max = c.AllowedByLimit
		c.Binding = ConstraintDailyLimit
	}
	return c
}

// Request is a proposed quantity for one line of a cart.
type Request struct {
	Product    Product
	Packages   int
	LooseUnits int
	// OtherReserved counts units of the same product held by other lines.
	OtherReserved int
	// NewLine marks an add-to-cart rather than an edit of an existing line.
	NewLine bool
}

// Result is the corrected quantity plus the reason it differs from the request.
type Result struct {
	Outcome    Outcome    `json:"outcome"`
	Packages   int        `json:"packages"`
	LooseUnits int        `json:"looseUnits"`
	TotalUnits int        `json:"totalUnits"`
	Remaining  int        `json:"remaining"`
	Reason     Constraint `json:"reason,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

// Validate checks req against live stock and the daily sale limit. It never
// fails: quantities above the ceiling are clamped down (or the add rejected
// when nothing at all can be reserved) and a user-facing warning explains
// which ceiling applied.
func Validate(req Request, ledger Ledger, baseline Baseline) Result {
	p := req.Product
	upp := quantity.Units(p.UnitsPerPackage)
	packages, loose := quantity.Normalize(req.Packages, req.LooseUnits, upp)
	total := quantity.ToTotalUnits(packages, loose, upp)

	ceiling := CeilingFor(p, ledger, baseline)
	remaining := max(ceiling.Max-max(req.OtherReserved, 0), 0)

	if total <= remaining {
		return Result{
			Outcome:    Accepted,
			Packages:   packages,
			LooseUnits: loose,
			TotalUnits: total,
			Remaining:  remaining - total,
		}
	}

	if req.NewLine && remaining == 0 {
		return Result{
			Outcome:   Rejected,
			Reason:    ceiling.Binding,
			Warning:   warning(p, ceiling, 0),
			Remaining: 0,
		}
	}

	// The whole remainder is kept and re-split, so a package that no longer
	// fits degrades into loose units instead of dropping to zero.
	packages, loose = quantity.FromTotalUnits(remaining, upp)
	return Result{
		Outcome:    Clamped,
		Packages:   packages,
		LooseUnits: loose,
		TotalUnits: remaining,
		Remaining:  0,
		Reason:     ceiling.Binding,
		Warning:    warning(p, ceiling, remaining),
	}
}

func warning(p Product, c Ceiling, allowed int) string {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	if c.Binding == ConstraintDailyLimit {
		if allowed == 0 {
			return fmt.Sprintf("%s has reached its daily limit of %d units", name, p.DailyLimit)
		}
		return fmt.Sprintf("%s is capped by its daily limit: only %d more units can be sold today", name, allowed)
	}
	if allowed == 0 {
		return fmt.Sprintf("%s is out of stock", name)
	}
	return fmt.Sprintf("%s has only %d units in stock; quantity reduced to %s", name, c.Available, describe(p, allowed))
}

func describe(p Product, total int) string {
	packages, loose := quantity.FromTotalUnits(total, p.UnitsPerPackage)
	label := p.PackageLabel
	if label == "" {
		label = "pkg"
	}
	if packages == 0 {
		return fmt.Sprintf("%d pcs", loose)
	}
	if loose == 0 {
		return fmt.Sprintf("%d %s", packages, label)
	}
	return fmt.Sprintf("%d %s + %d pcs", packages, label, loose)
}
