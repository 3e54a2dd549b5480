package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/lock"
	"github.com/noah-isme/toko-kasir/internal/obs"
	"github.com/noah-isme/toko-kasir/internal/pricing"
	"github.com/noah-isme/toko-kasir/internal/resilience"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLineNotFound is returned for edits of a product not in the cart.
	ErrLineNotFound = errors.New("line not found")
	// ErrCustomerNotFound is returned when a customer id is unknown.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrOrderNotFound is returned when an order cannot be loaded for editing.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUpstream wraps collaborator failures after retries are exhausted.
	ErrUpstream = errors.New("upstream unavailable")
)

// CustomerSource loads customer credit snapshots.
type CustomerSource interface {
	Customer(ctx context.Context, id string) (credit.Customer, error)
}

// OrderSource loads committed orders for editing.
type OrderSource interface {
	OrderForEdit(ctx context.Context, orderID string) (PersistedOrder, error)
}

// Runner executes a collaborator call with retries.
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Mutex serialises work on a key across processes.
type Mutex interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service drives cart sessions: it loads a cart, refreshes the live snapshot,
// applies one transition and saves the result.
type Service struct {
	Store     Store
	Snapshots inventory.SnapshotSource
	Customers CustomerSource
	Orders    OrderSource
	Retry     Runner
	Locker    Mutex
	LockTTL   time.Duration
	Policies  map[Channel]credit.Policy
	Location  *time.Location
	Clock     func() time.Time
	NewID     func() string
	Logger    zerolog.Logger
}

// View is a cart with its quote and anything the last transition corrected.
type View struct {
	Cart     Order           `json:"cart"`
	Quote    Quote           `json:"quote"`
	Problems []credit.Notice `json:"problems,omitempty"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// LineUpdate carries the optional fields of a line edit.
type LineUpdate struct {
	Packages     *int
	LooseUnits   *int
	Price        *pricing.Money
	Discount     *pricing.Discount
	DiscountMode *pricing.DiscountMode
}

func (u LineUpdate) empty() bool {
	return u.Packages == nil && u.LooseUnits == nil && u.Price == nil && u.Discount == nil && u.DiscountMode == nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Today is the business day used for the daily sales ledger.
func (s *Service) Today() time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	y, m, d := s.now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// PolicyFor returns the credit policy configured for ch.
func (s *Service) PolicyFor(ch Channel) credit.Policy {
	if p, ok := s.Policies[ch]; ok {
		return p
	}
	return credit.WarnOnly
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// View prices o under its channel policy.
func (s *Service) View(o Order, warnings []Warning) View {
	q := o.Quote(s.PolicyFor(o.Channel))
	return View{Cart: o, Quote: q, Problems: o.Problems(q), Warnings: warnings}
}

// Create starts an empty cart.
func (s *Service) Create(ctx context.Context, channel Channel) (View, error) {
	o := New(s.newID(), channel).recalc()
	if err := s.Store.Save(ctx, o); err != nil {
		return View{}, err
	}
	return s.View(o, nil), nil
}

// Get returns the cart.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	o, err := s.Store.Load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.View(o, nil), nil
}

// Load returns the stored cart without pricing it again.
func (s *Service) Load(ctx context.Context, id string) (Order, error) {
	return s.Store.Load(ctx, id)
}

// Discard deletes the cart session.
func (s *Service) Discard(ctx context.Context, id string) error {
	return s.Store.Delete(ctx, id)
}

type transition func(ctx context.Context, o Order) (Order, []Warning, error)

// mutate runs fn under the cart lock and saves the result. A failing
// transition leaves the stored cart untouched.
func (s *Service) mutate(ctx context.Context, id string, fn transition) (View, error) {
	var view View
	err := s.locked(ctx, id, func(ctx context.Context) error {
		o, err := s.Store.Load(ctx, id)
		if err != nil {
			return err
		}
		next, warnings, err := fn(ctx, o)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, next); err != nil {
			return err
		}
		for _, w := range warnings {
			obs.ObserveValidation(string(w.Outcome), string(w.Reason))
		}
		view = s.View(next, warnings)
		return nil
	})
	return view, err
}

func (s *Service) locked(ctx context.Context, id string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return s.Locker.WithLock(ctx, lock.CartKey(id), ttl, fn)
}

// fetch calls a collaborator through the retrier. Not-found answers are
// final and pass through unchanged; anything else that survives the retries
// becomes ErrUpstream.
func (s *Service) fetch(ctx context.Context, what string, fn func(context.Context) error) error {
	call := func(ctx context.Context) error {
		err := fn(ctx)
		if isNotFound(err) {
			return resilience.Permanent{Err: err}
		}
		return err
	}
	var err error
	if s.Retry != nil {
		err = s.Retry.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil || isNotFound(err) || errors.Is(err, context.Canceled) {
		return err
	}
	obs.Logger(ctx, s.Logger).Warn().Err(err).Str("collaborator", what).Msg("collaborator_failed")
	return fmt.Errorf("%s: %w: %w", what, ErrUpstream, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// Snapshot loads products and today's ledger for ids. Either both arrive or
// the call fails; a partial snapshot is never used.
func (s *Service) Snapshot(ctx context.Context, ids []string) (map[string]inventory.Product, inventory.Ledger, error) {
	var (
		products map[string]inventory.Product
		ledger   inventory.Ledger
	)
	err := s.fetch(ctx, "snapshot", func(ctx context.Context) error {
		p, err := s.Snapshots.Products(ctx, ids)
		if err != nil {
			return err
		}
		l, err := s.Snapshots.DailySold(ctx, s.Today(), ids)
		if err != nil {
			return err
		}
		products, ledger = p, l
		return nil
	})
	if err != nil {
		obs.ObserveSnapshot("error")
		return nil, nil, err
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			obs.ObserveSnapshot("missing")
			return nil, nil, fmt.Errorf("snapshot %s: %w", id, ErrProductNotFound)
		}
	}
	obs.ObserveSnapshot("ok")
	return products, ledger, nil
}

// AddLine adds a product to the cart after refreshing its stock and ledger.
func (s *Service) AddLine(ctx context.Context, id, productID string, packages, looseUnits int) (View, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return View{}, fmt.Errorf("product id required: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(ctx context.Context, o Order) (Order, []Warning, error) {
		products, ledger, err := s.Snapshot(ctx, []string{productID})
		if err != nil {
			return Order{}, nil, err
		}
		next, warnings := o.AddLine(products[productID], packages, looseUnits, ledger)
		return next, warnings, nil
	})
}

// UpdateLine applies a partial line edit. Quantity changes are validated
// against a fresh snapshot; price and discount edits are not.
func (s *Service) UpdateLine(ctx context.Context, id, productID string, upd LineUpdate) (View, error) {
	if upd.empty() {
		return View{}, fmt.Errorf("nothing to update: %w", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(ctx context.Context, o Order) (Order, []Warning, error) {
		line, ok := o.Line(productID)
		if !ok {
			return Order{}, nil, ErrLineNotFound
		}
		next := o
		var warnings []Warning
		if upd.Packages != nil || upd.LooseUnits != nil {
			products, ledger, err := s.Snapshot(ctx, []string{productID})
			if err != nil {
				return Order{}, nil, err
			}
			packages, loose := line.Packages, line.LooseUnits
			if upd.Packages != nil {
				packages = *upd.Packages
			}
			if upd.LooseUnits != nil {
				loose = *upd.LooseUnits
			}
			next, warnings = next.SetQuantity(products[productID], packages, loose, ledger)
		}
		if upd.Price != nil {
			next = next.SetLinePrice(productID, *upd.Price)
		}
		if upd.Discount != nil {
			next = next.SetLineDiscount(productID, *upd.Discount)
		}
		if upd.DiscountMode != nil {
			next = next.SwitchLineDiscountMode(productID, *upd.DiscountMode)
		}
		return next, warnings, nil
	})
}

// RemoveLine drops a product from the cart.
func (s *Service) RemoveLine(ctx context.Context, id, productID string) (View, error) {
	return s.mutate(ctx, id, func(_ context.Context, o Order) (Order, []Warning, error) {
		if _, ok := o.Line(productID); !ok {
			return Order{}, nil, ErrLineNotFound
		}
		return o.RemoveLine(productID), nil, nil
	})
}

// SetNotaDiscount sets the order-level discount.
func (s *Service) SetNotaDiscount(ctx context.Context, id string, d pricing.Discount) (View, error) {
	return s.mutate(ctx, id, func(_ context.Context, o Order) (Order, []Warning, error) {
		return o.SetNotaDiscount(d), nil, nil
	})
}

// SwitchNotaDiscountMode converts the order-level discount to mode.
func (s *Service) SwitchNotaDiscountMode(ctx context.Context, id string, mode pricing.DiscountMode) (View, error) {
	return s.mutate(ctx, id, func(_ context.Context, o Order) (Order, []Warning, error) {
		return o.SwitchNotaDiscountMode(mode), nil, nil
	})
}

// SetPayment records the tendered payment.
func (s *Service) SetPayment(ctx context.Context, id string, p pricing.Payment, dueDate *time.Time) (View, error) {
	if p.Method != "" && !p.Method.Valid() {
		return View{}, fmt.Errorf("payment method %q: %w", p.Method, ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(_ context.Context, o Order) (Order, []Warning, error) {
		return o.SetPayment(p, dueDate), nil, nil
	})
}

// SetCustomer attaches a registered customer by id, or a walk-in name when
// customerID is empty.
func (s *Service) SetCustomer(ctx context.Context, id, customerID, name string) (View, error) {
	customerID = strings.TrimSpace(customerID)
	return s.mutate(ctx, id, func(ctx context.Context, o Order) (Order, []Warning, error) {
		if customerID == "" {
			return o.SetCustomerName(name), nil, nil
		}
		c, err := s.customer(ctx, customerID)
		if err != nil {
			return Order{}, nil, err
		}
		return o.SetCustomer(c), nil, nil
	})
}

func (s *Service) customer(ctx context.Context, id string) (credit.Customer, error) {
	if s.Customers == nil {
		return credit.Customer{}, ErrCustomerNotFound
	}
	var c credit.Customer
	err := s.fetch(ctx, "customer", func(ctx context.Context) error {
		var err error
		c, err = s.Customers.Customer(ctx, id)
		return err
	})
	return c, err
}

// RefreshCustomer reloads the customer's credit snapshot.
func (s *Service) RefreshCustomer(ctx context.Context, o Order) (Order, error) {
	if o.Customer == nil || o.Customer.ID == "" {
		return o, nil
	}
	c, err := s.customer(ctx, o.Customer.ID)
	if err != nil {
		return Order{}, err
	}
	return o.SetCustomer(c), nil
}

// Reset clears the cart contents.
func (s *Service) Reset(ctx context.Context, id string) (View, error) {
	return s.mutate(ctx, id, func(_ context.Context, o Order) (Order, []Warning, error) {
		return o.Reset(), nil, nil
	})
}

// StartEdit opens a new cart session holding a committed order. The order's
// own reservation becomes the frozen edit baseline.
func (s *Service) StartEdit(ctx context.Context, orderID string) (View, error) {
	if s.Orders == nil {
		return View{}, ErrOrderNotFound
	}
	var persisted PersistedOrder
	err := s.fetch(ctx, "order", func(ctx context.Context) error {
		var err error
		persisted, err = s.Orders.OrderForEdit(ctx, orderID)
		return err
	})
	if err != nil {
		return View{}, err
	}
	ids := make([]string, 0, len(persisted.Lines))
	for _, l := range persisted.Lines {
		ids = append(ids, l.ProductID)
	}
	var products map[string]inventory.Product
	if len(ids) > 0 {
		products, _, err = s.Snapshot(ctx, ids)
		if err != nil {
			return View{}, err
		}
	}
	var customer *credit.Customer
	if persisted.CustomerID != "" {
		c, err := s.customer(ctx, persisted.CustomerID)
		if err != nil {
			return View{}, err
		}
		customer = &c
	}
	o, err := Rehydrate(s.newID(), persisted, products, customer)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.Save(ctx, o); err != nil {
		return View{}, err
	}
	obs.Logger(ctx, s.Logger).Info().
		Str("order_id", orderID).
		Str("cart_id", o.ID).
		Int("lines", len(o.Lines)).
		Msg("order_edit_started")
	return s.View(o, nil), nil
}
