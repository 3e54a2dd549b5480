package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-kasir/internal/cart"
	"github.com/noah-isme/toko-kasir/internal/checkout"
	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Orders loads committed orders for editing and commits checkouts.
type Orders struct {
	DB    DB
	NewID func() string
}

var (
	_ cart.OrderSource   = (*Orders)(nil)
	_ checkout.Committer = (*Orders)(nil)
)

// OrderForEdit loads a committed order with its lines in entry order.
func (o *Orders) OrderForEdit(ctx context.Context, orderID string) (cart.PersistedOrder, error) {
	var (
		out        cart.PersistedOrder
		mode       string
		amountPaid pricing.Money
		dueDate    *time.Time
	)
	err := o.DB.QueryRow(ctx, `
SELECT id, channel, nota_discount_mode, nota_discount_value, payment_method,
       amount_paid, cash, transfer, grand_total, due_date,
       COALESCE(customer_id, ''), customer_name
FROM orders WHERE id = $1`, orderID,
	).Scan(&out.ID, &out.Channel, &mode, &out.NotaDiscount.Value, &out.Payment.Method,
		&amountPaid, &out.Payment.Cash, &out.Payment.Transfer, &out.GrandTotal, &dueDate,
		&out.CustomerID, &out.CustomerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.PersistedOrder{}, fmt.Errorf("order %s: %w", orderID, cart.ErrOrderNotFound)
	}
	if err != nil {
		return cart.PersistedOrder{}, fmt.Errorf("select order: %w", err)
	}
	out.NotaDiscount.Mode = pricing.ParseDiscountMode(mode)
	if out.Payment.Method == pricing.PaymentSplit {
		out.Payment.Amount = 0
	} else {
		out.Payment.Amount = amountPaid
		out.Payment.Cash, out.Payment.Transfer = 0, 0
	}
	out.DueDate = dueDate

	rows, err := o.DB.Query(ctx, `
SELECT product_id, packages, loose_units, total_units, unit_price, per_package_discount
FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return cart.PersistedOrder{}, fmt.Errorf("select order items: %w", err)
	}
	out.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.PersistedLine, error) {
		var l cart.PersistedLine
		err := row.Scan(&l.ProductID, &l.Packages, &l.LooseUnits, &l.TotalUnits, &l.UnitPrice, &l.PerPackageDiscount)
		return l, err
	})
	if err != nil {
		return cart.PersistedOrder{}, fmt.Errorf("scan order items: %w", err)
	}
	return out, nil
}

// Receipt returns the receipt stored for an already committed key.
func (o *Orders) Receipt(ctx context.Context, idemKey string) (checkout.Receipt, bool, error) {
	return storedReceipt(ctx, o.DB, idemKey)
}

type priorOrder struct {
	customerID string
	due        pricing.Money
	day        time.Time
	held       inventory.Baseline
}

// Commit writes the checkout in one transaction. The edited order's units are
// returned to stock and its day's ledger before the new lines are checked, so
// an edit is only charged for what it adds. A key that was already committed
// returns the stored receipt.
func (o *Orders) Commit(ctx context.Context, req checkout.Request) (checkout.Receipt, error) {
	tx, err := o.DB.Begin(ctx)
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if receipt, ok, err := storedReceipt(ctx, tx, req.IdempotencyKey); err != nil || ok {
		return receipt, err
	}

	orderID := req.EditingOrderID
	var prior *priorOrder
	if orderID != "" {
		prior, err = lockPrior(ctx, tx, orderID)
		if err != nil {
			return checkout.Receipt{}, err
		}
	} else {
		orderID = o.newID()
	}

	requested := make(map[string]int, len(req.Payload.Items))
	for _, it := range req.Payload.Items {
		requested[it.ProductID] += it.TotalUnits
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	if prior != nil {
		for id := range prior.held {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return checkout.Receipt{}, err
	}
	if prior != nil {
		if err := restore(ctx, tx, prior, products); err != nil {
			return checkout.Receipt{}, err
		}
	}

	ledger, err := loadSold(ctx, tx, req.Day, ids, true)
	if err != nil {
		return checkout.Receipt{}, err
	}
	for _, id := range ids {
		want := requested[id]
		if want == 0 {
			continue
		}
		p, ok := products[id]
		if !ok {
			return checkout.Receipt{}, &checkout.StockConflict{ProductID: id, Requested: want, Reason: inventory.ConstraintStock}
		}
		c := inventory.CeilingFor(p, ledger, nil)
		if want > c.Max {
			return checkout.Receipt{}, &checkout.StockConflict{ProductID: id, Requested: want, Allowed: c.Max, Reason: c.Binding}
		}
	}
	for _, id := range ids {
		want := requested[id]
		if want == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1`, id, want); err != nil {
			return checkout.Receipt{}, fmt.Errorf("decrement stock %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO daily_sales (day, product_id, units) VALUES ($1, $2, $3)
ON CONFLICT (day, product_id) DO UPDATE SET units = daily_sales.units + EXCLUDED.units`,
			req.Day, id, want); err != nil {
			return checkout.Receipt{}, fmt.Errorf("record daily sales %s: %w", id, err)
		}
	}

	if err := writeOrder(ctx, tx, orderID, req, prior != nil); err != nil {
		return checkout.Receipt{}, err
	}
	if err := writeItems(ctx, tx, orderID, req.Payload.Items); err != nil {
		return checkout.Receipt{}, err
	}
	if err := settleDebt(ctx, tx, prior, req); err != nil {
		return checkout.Receipt{}, err
	}

	receipt := checkout.Receipt{
		OrderID:    orderID,
		Channel:    req.Channel,
		Status:     req.Status,
		GrandTotal: req.Summary.GrandTotal,
		AmountPaid: req.Summary.AmountPaid,
		Change:     req.Summary.Change,
		Due:        req.Summary.Due,
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("encode receipt: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO order_commits (idempotency_key, order_id, receipt) VALUES ($1, $2, $3)`,
		req.IdempotencyKey, orderID, raw); err != nil {
		if isUniqueViolation(err) {
			// a concurrent commit won; the retry reads its receipt
			return checkout.Receipt{}, fmt.Errorf("idempotency key %s taken: %w", req.IdempotencyKey, err)
		}
		return checkout.Receipt{}, fmt.Errorf("record commit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return checkout.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return receipt, nil
}

func (o *Orders) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func storedReceipt(ctx context.Context, q rowQuerier, key string) (checkout.Receipt, bool, error) {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT receipt FROM order_commits WHERE idempotency_key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.Receipt{}, false, nil
	}
	if err != nil {
		return checkout.Receipt{}, false, fmt.Errorf("select commit: %w", err)
	}
	var r checkout.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return checkout.Receipt{}, false, fmt.Errorf("decode receipt: %w", err)
	}
	r.Replayed = true
	return r, true, nil
}

func lockPrior(ctx context.Context, tx pgx.Tx, orderID string) (*priorOrder, error) {
	p := &priorOrder{}
	err := tx.QueryRow(ctx, `
SELECT COALESCE(customer_id, ''), due_amount, business_day
FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&p.customerID, &p.due, &p.day)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, cart.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	rows, err := tx.Query(ctx, `SELECT product_id, total_units FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select held units: %w", err)
	}
	reservations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Reservation, error) {
		var r inventory.Reservation
		err := row.Scan(&r.ProductID, &r.TotalUnits)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan held units: %w", err)
	}
	p.held = inventory.BaselineFrom(reservations)
	return p, nil
}

func lockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]inventory.Product, error) {
	rows, err := tx.Query(ctx, selectProducts+` ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	out := make(map[string]inventory.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// restore hands the edited order's units back to stock and to the ledger of
// the day it was sold.
func restore(ctx context.Context, tx pgx.Tx, prior *priorOrder, products map[string]inventory.Product) error {
	for id, units := range prior.held {
		if units == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, units); err != nil {
			return fmt.Errorf("restore stock %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE daily_sales SET units = GREATEST(units - $3, 0) WHERE day = $1 AND product_id = $2`,
			prior.day, id, units); err != nil {
			return fmt.Errorf("restore daily sales %s: %w", id, err)
		}
		if p, ok := products[id]; ok {
			p.Stock += units
			products[id] = p
		}
	}
	return nil
}

func writeOrder(ctx context.Context, tx pgx.Tx, orderID string, req checkout.Request, editing bool) error {
	s := req.Summary
	nota := req.NotaDiscount.Normalize()
	var customerID *string
	if req.Payload.CustomerID != "" {
		id := req.Payload.CustomerID
		customerID = &id
	}
	var cash, transfer pricing.Money
	if req.Payload.Cash != nil {
		cash = *req.Payload.Cash
	}
	if req.Payload.Transfer != nil {
		transfer = *req.Payload.Transfer
	}
	args := []any{
		orderID, string(req.Channel), string(req.Status), req.Day,
		s.Subtotal, s.ItemDiscount, string(nota.Mode), nota.Value, s.NotaDiscount, s.GrandTotal,
		string(req.Payload.PaymentMethod), s.AmountPaid, cash, transfer, s.Change, s.Due,
		customerID, req.Payload.CustomerName, req.DueDate,
	}
	if !editing {
		_, err := tx.Exec(ctx, `
INSERT INTO orders (id, channel, status, business_day,
    subtotal, item_discount, nota_discount_mode, nota_discount_value, nota_discount, grand_total,
    payment_method, amount_paid, cash, transfer, change_amount, due_amount,
    customer_id, customer_name, due_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`, args...)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	}
	_, err := tx.Exec(ctx, `
UPDATE orders SET channel = $2, status = $3, business_day = $4,
    subtotal = $5, item_discount = $6, nota_discount_mode = $7, nota_discount_value = $8,
    nota_discount = $9, grand_total = $10, payment_method = $11, amount_paid = $12,
    cash = $13, transfer = $14, change_amount = $15, due_amount = $16,
    customer_id = $17, customer_name = $18, due_date = $19,
    revision = revision + 1, updated_at = now()
WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("clear order items: %w", err)
	}
	return nil
}

func writeItems(ctx context.Context, tx pgx.Tx, orderID string, items []cart.PayloadItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(`
INSERT INTO order_items (order_id, position, product_id, packages, loose_units, total_units,
    unit_price, per_package_discount, weight)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			orderID, i, it.ProductID, it.Packages, it.LooseUnits, it.TotalUnits,
			it.UnitPrice, it.PerPackageDiscount, it.Weight)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

// settleDebt removes the edited order's outstanding amount from whoever
// carried it and books the new shortfall.
func settleDebt(ctx context.Context, tx pgx.Tx, prior *priorOrder, req checkout.Request) error {
	if prior != nil && prior.customerID != "" && prior.due > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE customers SET debt = GREATEST(debt - $2, 0), updated_at = now() WHERE id = $1`,
			prior.customerID, prior.due); err != nil {
			return fmt.Errorf("release prior debt: %w", err)
		}
	}
	if req.Status != credit.StatusOnCredit || req.Shortfall <= 0 {
		return nil
	}
	tag, err := tx.Exec(ctx,
		`UPDATE customers SET debt = debt + $2, updated_at = now() WHERE id = $1`,
		req.Payload.CustomerID, req.Shortfall)
	if err != nil {
		return fmt.Errorf("book debt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", req.Payload.CustomerID, cart.ErrCustomerNotFound)
	}
	return nil
}
