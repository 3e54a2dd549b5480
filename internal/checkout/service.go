package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-kasir/internal/cart"
	"github.com/noah-isme/toko-kasir/internal/common"
	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/events"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/lock"
	"github.com/noah-isme/toko-kasir/internal/obs"
	"github.com/noah-isme/toko-kasir/internal/pricing"
	"github.com/noah-isme/toko-kasir/internal/resilience"
)

var (
	// ErrStockChanged means stock or the daily ledger moved between the
	// cart's last refresh and the commit.
	ErrStockChanged = errors.New("stock changed")
	// ErrBlocked means the cart fails a checkout rule.
	ErrBlocked = errors.New("checkout blocked")
)

// StockConflict names the line that no longer fits.
type StockConflict struct {
	ProductID string
	Requested int
	Allowed   int
	Reason    inventory.Constraint
}

func (c *StockConflict) Error() string {
	return fmt.Sprintf("stock changed for %s: requested %d, allowed %d (%s)", c.ProductID, c.Requested, c.Allowed, c.Reason)
}

func (c *StockConflict) Unwrap() error { return ErrStockChanged }

// Request is everything the persistence layer needs to commit a cart.
type Request struct {
	IdempotencyKey string
	CartID         string
	Channel        cart.Channel
	EditingOrderID string
	Day            time.Time
	Baseline       inventory.Baseline
	Payload        cart.Payload
	NotaDiscount   pricing.Discount
	Summary        pricing.Summary
	Status         credit.Status
	Shortfall      pricing.Money
	PriorDue       pricing.Money
	DueDate        *time.Time
}

// Receipt is the outcome of a commit.
type Receipt struct {
	OrderID    string        `json:"orderId"`
	Channel    cart.Channel  `json:"channel,omitempty"`
	Status     credit.Status `json:"status"`
	GrandTotal pricing.Money `json:"grandTotal"`
	AmountPaid pricing.Money `json:"amountPaid"`
	Change     pricing.Money `json:"change"`
	Due        pricing.Money `json:"due"`
	Replayed   bool          `json:"replayed,omitempty"`
}

// Committer writes an order atomically: stock decrements, the daily ledger,
// order rows and customer debt. It returns a *StockConflict when the
// authoritative figures no longer allow a line, and the original receipt when
// the idempotency key was already committed. Receipt looks up a committed
// key without touching any cart.
type Committer interface {
	Commit(ctx context.Context, req Request) (Receipt, error)
	Receipt(ctx context.Context, idemKey string) (Receipt, bool, error)
}

// Publisher emits domain events.
type Publisher interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) error
}

// MultiLocker holds several locks at once.
type MultiLocker interface {
	WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error
}

// Runner executes a collaborator call with retries.
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Service converts a cart into a committed order.
type Service struct {
	Carts     *cart.Service
	Committer Committer
	Retry     Runner
	Locker    MultiLocker
	LockTTL   time.Duration
	Events    Publisher
	Logger    zerolog.Logger
}

// Checkout commits the cart. idemKey defaults to the cart id. The cart is
// deleted on success, so a repeat of a committed key is answered from the
// stored receipt before the cart is loaded.
func (s *Service) Checkout(ctx context.Context, cartID, idemKey string) (Receipt, error) {
	if s == nil || s.Carts == nil || s.Committer == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	if idemKey == "" {
		idemKey = cartID
	}
	logger := obs.Logger(ctx, s.Logger)

	if receipt, ok, err := s.storedReceipt(ctx, idemKey); err != nil || ok {
		if err != nil {
			logger.Error().Err(err).Str("cart_id", cartID).Msg("checkout_receipt_lookup_failed")
			return Receipt{}, common.NewAppError("UPSTREAM_UNAVAILABLE", "order could not be saved, please retry", http.StatusServiceUnavailable, err)
		}
		obs.ObserveCommit(string(receipt.Channel), "replayed", 0)
		logger.Info().Str("order_id", receipt.OrderID).Str("cart_id", cartID).Msg("checkout_replayed")
		return receipt, nil
	}

	o, err := s.Carts.Load(ctx, cartID)
	if err != nil {
		return Receipt{}, err
	}
	o, err = s.Carts.RefreshCustomer(ctx, o)
	if err != nil {
		return Receipt{}, err
	}
	view := s.Carts.View(o, nil)
	obs.ObserveCreditVerdict(string(o.Channel), string(view.Quote.Verdict.Status), view.Quote.Verdict.Eligible)
	if len(view.Problems) > 0 {
		return Receipt{}, common.NewAppError("CHECKOUT_BLOCKED", "cart cannot be checked out", http.StatusUnprocessableEntity, ErrBlocked).
			WithDetails(view.Problems)
	}

	req := Request{
		IdempotencyKey: idemKey,
		CartID:         o.ID,
		Channel:        o.Channel,
		EditingOrderID: o.EditingOrderID,
		Day:            s.Carts.Today(),
		Baseline:       o.Baseline.Clone(),
		Payload:        o.Payload(),
		NotaDiscount:   o.NotaDiscount,
		Summary:        o.Summary,
		Status:         view.Quote.Verdict.Status,
		Shortfall:      view.Quote.Verdict.Shortfall,
		PriorDue:       o.PriorDue,
		DueDate:        o.DueDate,
	}
	keys := make([]string, 0, len(o.Lines))
	for _, id := range o.ProductIDs() {
		keys = append(keys, lock.ProductKey(id))
	}

	start := time.Now()
	var receipt Receipt
	err = s.withLocks(ctx, keys, func(ctx context.Context) error {
		return s.run(ctx, func(ctx context.Context) error {
			r, err := s.Committer.Commit(ctx, req)
			if errors.Is(err, ErrStockChanged) {
				return resilience.Permanent{Err: err}
			}
			receipt = r
			return err
		})
	})
	elapsed := time.Since(start)

	var conflict *StockConflict
	switch {
	case err == nil:
	case errors.As(err, &conflict) || errors.Is(err, ErrStockChanged):
		obs.ObserveCommit(string(o.Channel), "stock_changed", elapsed)
		s.publishConflict(ctx, o.ID, conflict)
		logger.Warn().Err(err).Str("cart_id", o.ID).Msg("checkout_stock_changed")
		return Receipt{}, common.NewAppError("STOCK_CHANGED", "stock changed, please refresh the cart", http.StatusConflict, err).
			WithDetails(conflictDetails(conflict))
	case errors.Is(err, context.Canceled):
		return Receipt{}, err
	default:
		obs.ObserveCommit(string(o.Channel), "error", elapsed)
		logger.Error().Err(err).Str("cart_id", o.ID).Msg("checkout_commit_failed")
		return Receipt{}, common.NewAppError("UPSTREAM_UNAVAILABLE", "order could not be saved, please retry", http.StatusServiceUnavailable, err)
	}

	result := "committed"
	if receipt.Replayed {
		result = "replayed"
	}
	obs.ObserveCommit(string(o.Channel), result, elapsed)

	if err := s.Carts.Discard(ctx, o.ID); err != nil {
		logger.Warn().Err(err).Str("cart_id", o.ID).Msg("cart_discard_failed")
	}
	s.publishCommitted(ctx, o, receipt, req.Day)
	logger.Info().
		Str("order_id", receipt.OrderID).
		Str("cart_id", o.ID).
		Str("status", string(receipt.Status)).
		Int64("grand_total", receipt.GrandTotal).
		Bool("replayed", receipt.Replayed).
		Bool("edited", o.Editing()).
		Msg("checkout_committed")
	return receipt, nil
}

func (s *Service) storedReceipt(ctx context.Context, idemKey string) (Receipt, bool, error) {
	var (
		receipt Receipt
		found   bool
	)
	err := s.run(ctx, func(ctx context.Context) error {
		r, ok, err := s.Committer.Receipt(ctx, idemKey)
		receipt, found = r, ok
		return err
	})
	if err != nil {
		return Receipt{}, false, err
	}
	if found {
		receipt.Replayed = true
	}
	return receipt, found, nil
}

func (s *Service) withLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return s.Locker.WithLocks(ctx, keys, ttl, fn)
}

func (s *Service) run(ctx context.Context, fn func(context.Context) error) error {
	if s.Retry == nil {
		err := fn(ctx)
		var p resilience.Permanent
		if errors.As(err, &p) {
			return p.Err
		}
		return err
	}
	return s.Retry.Do(ctx, fn)
}

func (s *Service) publishCommitted(ctx context.Context, o cart.Order, r Receipt, day time.Time) {
	if s.Events == nil || r.Replayed {
		return
	}
	evt := events.OrderCommitted{
		OrderID:    r.OrderID,
		CartID:     o.ID,
		Channel:    string(o.Channel),
		Day:        day.Format(time.DateOnly),
		ProductIDs: productIDs(o),
		GrandTotal: r.GrandTotal,
		Status:     string(r.Status),
		Edited:     o.Editing(),
	}
	if err := s.Events.Emit(ctx, events.TopicOrderCommitted, r.OrderID+":"+o.ID, evt); err != nil {
		obs.Logger(ctx, s.Logger).Warn().Err(err).Str("order_id", r.OrderID).Msg("publish_failed")
	}
}

func (s *Service) publishConflict(ctx context.Context, cartID string, c *StockConflict) {
	if s.Events == nil || c == nil {
		return
	}
	evt := events.StockConflict{
		CartID:    cartID,
		ProductID: c.ProductID,
		Requested: c.Requested,
		Allowed:   c.Allowed,
		Reason:    string(c.Reason),
	}
	aggregate := fmt.Sprintf("%s:%d", cartID, time.Now().UnixNano())
	if err := s.Events.Emit(ctx, events.TopicStockConflict, aggregate, evt); err != nil {
		obs.Logger(ctx, s.Logger).Warn().Err(err).Str("cart_id", cartID).Msg("publish_failed")
	}
}

// productIDs includes the edited order's products so removed lines are
// invalidated too.
func productIDs(o cart.Order) []string {
	seen := make(map[string]struct{}, len(o.Lines)+len(o.Baseline))
	out := make([]string, 0, len(o.Lines)+len(o.Baseline))
	for _, id := range o.ProductIDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for id := range o.Baseline {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func conflictDetails(c *StockConflict) map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{
		"productId": c.ProductID,
		"requested": c.Requested,
		"allowed":   c.Allowed,
		"reason":    c.Reason,
	}
}
