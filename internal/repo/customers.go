package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-kasir/internal/cart"
	"github.com/noah-isme/toko-kasir/internal/credit"
)

// Customers loads credit snapshots.
type Customers struct {
	DB DB
}

// Customer returns the customer's limit and outstanding debt.
func (c *Customers) Customer(ctx context.Context, id string) (credit.Customer, error) {
	var out credit.Customer
	err := c.DB.QueryRow(ctx,
		`SELECT id, name, credit_limit, debt FROM customers WHERE id = $1`, id,
	).Scan(&out.ID, &out.Name, &out.Limit, &out.Debt)
	if errors.Is(err, pgx.ErrNoRows) {
		return credit.Customer{}, fmt.Errorf("customer %s: %w", id, cart.ErrCustomerNotFound)
	}
	if err != nil {
		return credit.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return out, nil
}
