package credit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

func registered() *credit.Customer {
	return &credit.Customer{ID: "cust-1", Name: "Toko Makmur", Limit: 500, Debt: 300}
}

func TestEvaluatePaidInFull(t *testing.T) {
	v := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: 1_250})
	require.Equal(t, credit.StatusPaid, v.Status)
	require.Equal(t, pricing.Money(250), v.Change)
	require.True(t, v.Eligible)
	require.False(t, v.DueDateRequired)
	require.Empty(t, v.Advisories)
}

func TestEvaluateCreditGating(t *testing.T) {
	exceeded := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: 700, Customer: registered(), Policy: credit.WarnOnly})
	require.Equal(t, credit.StatusOnCredit, exceeded.Status)
	require.Equal(t, pricing.Money(300), exceeded.Shortfall)
	require.True(t, exceeded.Eligible)
	require.True(t, exceeded.DueDateRequired)
	require.True(t, exceeded.HasAdvisory(credit.ReasonLimitExceeded))

	within := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: 800, Customer: registered(), Policy: credit.WarnOnly})
	require.Equal(t, credit.StatusOnCredit, within.Status)
	require.Equal(t, pricing.Money(200), within.Shortfall)
	require.True(t, within.Eligible)
	require.Empty(t, within.Advisories)
	require.Empty(t, within.Blocks)
}

func TestEvaluateBlockOnExceed(t *testing.T) {
	v := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: 700, Customer: registered(), Policy: credit.BlockOnExceed})
	require.Equal(t, credit.StatusOnCredit, v.Status)
	require.False(t, v.Eligible)
	require.Empty(t, v.Advisories)
	require.Len(t, v.Blocks, 1)
	require.Equal(t, credit.ReasonLimitExceeded, v.Blocks[0].Code)
}

func TestEvaluateManualCustomerBlocked(t *testing.T) {
	for _, paid := range []pricing.Money{0, 1, 999} {
		v := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: paid, CustomerName: "Pak Budi"})
		require.Equal(t, credit.StatusOnCredit, v.Status)
		require.False(t, v.Eligible)
		require.Len(t, v.Blocks, 1)
		require.Equal(t, credit.ReasonUnregisteredCustomer, v.Blocks[0].Code)
		require.Contains(t, v.Blocks[0].Message, "Pak Budi")
	}
}

func TestEvaluateZeroLimitCarriesNoAdvisory(t *testing.T) {
	v := credit.Evaluate(credit.Input{GrandTotal: 1_000, AmountPaid: 0, Customer: &credit.Customer{ID: "c"}, Policy: credit.BlockOnExceed})
	require.True(t, v.Eligible)
	require.Empty(t, v.Advisories)
}

func TestRemaining(t *testing.T) {
	require.Equal(t, pricing.Money(200), registered().Remaining())
	require.Zero(t, credit.Customer{Limit: 100, Debt: 400}.Remaining())
}

func TestParsePolicy(t *testing.T) {
	p, err := credit.ParsePolicy(" BLOCK_ON_EXCEED ")
	require.NoError(t, err)
	require.Equal(t, credit.BlockOnExceed, p)

	p, err = credit.ParsePolicy("warn")
	require.NoError(t, err)
	require.Equal(t, credit.WarnOnly, p)

	_, err = credit.ParsePolicy("maybe")
	require.ErrorIs(t, err, credit.ErrUnknownPolicy)
}
