// Package credit decides payment status and whether a sale may be carried as
// customer debt (piutang).
package credit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Policy controls how an exceeded credit limit is treated.
type Policy string

const (
	// WarnOnly lets the sale through with an advisory.
	WarnOnly Policy = "warn_only"
	// BlockOnExceed refuses the sale.
	BlockOnExceed Policy = "block_on_exceed"
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognised values.
var ErrUnknownPolicy = errors.New("credit: unknown policy")

// ParsePolicy converts configuration text into a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(WarnOnly), "warn", "soft":
		return WarnOnly, nil
	case string(BlockOnExceed), "block", "hard":
		return BlockOnExceed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, value)
	}
}

// Customer is the credit snapshot of a registered customer.
type Customer struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Limit pricing.Money `json:"limit"`
	Debt  pricing.Money `json:"debt"`
}

// Remaining is the unused part of the credit limit.
func (c Customer) Remaining() pricing.Money {
	return max(c.Limit-c.Debt, 0)
}
