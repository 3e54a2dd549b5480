package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/credit"
	"github.com/noah-isme/toko-kasir/internal/inventory"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

func indomie() inventory.Product {
	return inventory.Product{
		ID:              "indomie",
		Name:            "Indomie Goreng",
		PackageLabel:    "dus",
		UnitsPerPackage: 12,
		SalePrice:       120000,
		Stock:           60,
		WeightPerUnit:   0.085,
	}
}

func aqua() inventory.Product {
	return inventory.Product{
		ID:              "aqua",
		Name:            "Aqua 600ml",
		UnitsPerPackage: 1,
		SalePrice:       3500,
		Stock:           100,
	}
}

func TestAddLineMergesSameProduct(t *testing.T) {
	o := New("c1", ChannelKasir)
	o, w := o.AddLine(indomie(), 1, 0, nil)
	require.Empty(t, w)
	o, w = o.AddLine(indomie(), 0, 14, nil)
	require.Empty(t, w)

	require.Len(t, o.Lines, 1)
	l := o.Lines[0]
	require.Equal(t, 2, l.Packages)
	require.Equal(t, 2, l.LooseUnits)
	require.Equal(t, 26, l.TotalUnits)
	require.Equal(t, pricing.Money(260000), l.Gross)
	require.InDelta(t, 2.21, l.Weight, 1e-9)
	require.Equal(t, pricing.Money(260000), o.Summary.Subtotal)
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	base, _ := New("c1", ChannelKasir).AddLine(indomie(), 1, 0, nil)
	next, _ := base.AddLine(indomie(), 1, 0, nil)
	_ = next.SetLineDiscount("indomie", pricing.Discount{Mode: pricing.DiscountAmount, Value: 5000})
	_ = next.RemoveLine("indomie")

	require.Equal(t, 1, base.Lines[0].Packages)
	require.Equal(t, 2, next.Lines[0].Packages)
	require.Zero(t, next.Lines[0].Discount.Value)
}

func TestAddLineDailyLimitScenario(t *testing.T) {
	p := indomie()
	p.Stock = 15
	p.DailyLimit = 20
	ledger := inventory.Ledger{"indomie": 10}

	o, w := New("c1", ChannelKasir).AddLine(p, 1, 0, ledger)
	require.Len(t, w, 1)
	require.Equal(t, inventory.Clamped, w[0].Outcome)
	require.Equal(t, inventory.ConstraintDailyLimit, w[0].Reason)
	require.Contains(t, w[0].Message, "daily limit")
	require.Equal(t, 0, o.Lines[0].Packages)
	require.Equal(t, 10, o.Lines[0].LooseUnits)
}

func TestAddLineRejectedLeavesCartUnchanged(t *testing.T) {
	p := aqua()
	p.Stock = 0
	o := New("c1", ChannelKasir)
	next, w := o.AddLine(p, 0, 3, nil)
	require.Len(t, w, 1)
	require.Equal(t, inventory.Rejected, w[0].Outcome)
	require.Empty(t, next.Lines)
}

func TestUpdateQuantityFields(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(indomie(), 1, 0, nil)

	o, w := o.UpdateLooseUnits(indomie(), 13, nil)
	require.Empty(t, w)
	require.Equal(t, 2, o.Lines[0].Packages)
	require.Equal(t, 1, o.Lines[0].LooseUnits)

	o, _ = o.UpdatePackages(indomie(), 4, nil)
	require.Equal(t, 4, o.Lines[0].Packages)
	require.Equal(t, 1, o.Lines[0].LooseUnits)

	o, w = o.UpdatePackages(indomie(), 10, nil)
	require.Len(t, w, 1)
	require.Equal(t, inventory.ConstraintStock, w[0].Reason)
	require.Equal(t, 60, o.Lines[0].TotalUnits)

	same, w := o.UpdatePackages(aqua(), 3, nil)
	require.Empty(t, w)
	require.Equal(t, o, same)
}

func TestSetLinePriceCapsAtCatalog(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(indomie(), 1, 0, nil)
	o = o.SetLinePrice("indomie", 110000)
	require.Equal(t, pricing.Money(110000), o.Lines[0].Price)
	require.Equal(t, pricing.Money(110000), o.Summary.Subtotal)

	o = o.SetLinePrice("indomie", 150000)
	require.Equal(t, pricing.Money(120000), o.Lines[0].Price)
	o = o.SetLinePrice("indomie", -5)
	require.Zero(t, o.Lines[0].Price)
}

func TestLineDiscountAppliesToPackagesOnly(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(indomie(), 2, 6, nil)
	o = o.SetLineDiscount("indomie", pricing.Discount{Mode: pricing.DiscountAmount, Value: 5000})

	l := o.Lines[0]
	require.Equal(t, pricing.Money(5000), l.PerPackageDiscount)
	require.Equal(t, pricing.Money(10000), l.LineDiscount)
	require.Equal(t, pricing.Money(300000), l.Gross)
	require.Equal(t, pricing.Money(290000), l.Total)

	o = o.SwitchLineDiscountMode("indomie", pricing.DiscountPercent)
	require.Equal(t, pricing.Discount{Mode: pricing.DiscountPercent, Value: 4}, o.Lines[0].Discount)
	require.Equal(t, pricing.Money(4800), o.Lines[0].PerPackageDiscount)
}

func TestLineDiscountNeverExceedsPrice(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(aqua(), 0, 2, nil)
	o = o.SetLineDiscount("aqua", pricing.Discount{Mode: pricing.DiscountAmount, Value: 9000})
	require.Equal(t, pricing.Money(3500), o.Lines[0].PerPackageDiscount)
	require.Zero(t, o.Lines[0].Total)
}

func TestNotaDiscountModeSwitch(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(aqua(), 0, 40, nil)
	o = o.SetNotaDiscount(pricing.Discount{Mode: pricing.DiscountAmount, Value: 14000})
	require.Equal(t, pricing.Money(126000), o.Summary.GrandTotal)

	o = o.SwitchNotaDiscountMode(pricing.DiscountPercent)
	require.Equal(t, pricing.Discount{Mode: pricing.DiscountPercent, Value: 10}, o.NotaDiscount)
	require.Equal(t, pricing.Money(14000), o.Summary.NotaDiscount)
}

func TestSetPaymentAndChange(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(aqua(), 0, 10, nil)
	o = o.SetPayment(pricing.Payment{Method: pricing.PaymentCash, Amount: 50000, Cash: 99}, nil)
	require.Equal(t, pricing.Money(15000), o.Summary.Change)
	require.Zero(t, o.Payment.Cash)

	o = o.SetPayment(pricing.Payment{Method: pricing.PaymentSplit, Amount: 99, Cash: 20000, Transfer: 10000}, nil)
	require.Equal(t, pricing.Money(30000), o.Summary.AmountPaid)
	require.Zero(t, o.Payment.Amount)
}

func TestCustomerTransitions(t *testing.T) {
	o := New("c1", ChannelKasir)
	o = o.SetCustomer(credit.Customer{ID: "cust-1", Name: "Bu Sari", Limit: 500})
	require.Equal(t, "Bu Sari", o.CustomerName)
	require.NotNil(t, o.Customer)

	o = o.SetCustomerName("  Pak Budi ")
	require.Nil(t, o.Customer)
	require.Equal(t, "Pak Budi", o.CustomerName)
}

func TestResetKeepsEditBaseline(t *testing.T) {
	o, _ := New("c1", ChannelSales).AddLine(aqua(), 0, 5, nil)
	o.EditingOrderID = "ord-1"
	o.Baseline = inventory.Baseline{"aqua": 5}
	o = o.SetNotaDiscount(pricing.Discount{Mode: pricing.DiscountAmount, Value: 100})

	reset := o.Reset()
	require.Empty(t, reset.Lines)
	require.Zero(t, reset.NotaDiscount.Value)
	require.Equal(t, "c1", reset.ID)
	require.Equal(t, ChannelSales, reset.Channel)
	require.Equal(t, "ord-1", reset.EditingOrderID)
	require.Equal(t, 5, reset.Baseline.Of("aqua"))
}

func TestQuoteAndProblems(t *testing.T) {
	empty := New("c1", ChannelKasir).recalc()
	q := empty.Quote(credit.WarnOnly)
	require.Equal(t, credit.StatusPaid, q.Verdict.Status)
	require.Equal(t, []string{ProblemEmptyCart}, codes(empty.Problems(q)))

	o, _ := New("c1", ChannelKasir).AddLine(aqua(), 0, 10, nil)
	o = o.SetPayment(pricing.Payment{Method: pricing.PaymentCash, Amount: 5000}, nil)
	q = o.Quote(credit.WarnOnly)
	require.Equal(t, credit.StatusOnCredit, q.Verdict.Status)
	require.Equal(t, []string{credit.ReasonUnregisteredCustomer, ProblemDueDateRequired}, codes(o.Problems(q)))

	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	o = o.SetCustomer(credit.Customer{ID: "cust-1", Name: "Bu Sari", Limit: 1000000}).
		SetPayment(pricing.Payment{Method: pricing.PaymentCash, Amount: 5000}, &due)
	q = o.Quote(credit.BlockOnExceed)
	require.Empty(t, o.Problems(q))
	require.True(t, q.Verdict.Eligible)
}

func TestZeroQuantityLineBlocksCheckout(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(aqua(), 0, 1, nil)
	o, _ = o.SetQuantity(aqua(), 0, 0, nil)
	q := o.Quote(credit.WarnOnly)
	require.Contains(t, codes(o.Problems(q)), ProblemZeroQuantity)
}

func TestQuoteNetsOutPriorDueWhenEditing(t *testing.T) {
	o, _ := New("c1", ChannelSales).AddLine(aqua(), 0, 100, nil)
	o.PriorDue = 300000
	o.PriorCustomerID = "cust-1"
	o = o.SetCustomer(credit.Customer{ID: "cust-1", Name: "Toko Maju", Limit: 400000, Debt: 350000})

	q := o.Quote(credit.BlockOnExceed)
	require.Equal(t, pricing.Money(350000), q.Verdict.Shortfall)
	require.True(t, q.Verdict.Eligible, "remaining credit is 400000-(350000-300000)")
}

func TestQuoteKeepsDebtOfAnotherCustomerWhenEditing(t *testing.T) {
	o, _ := New("c1", ChannelSales).AddLine(aqua(), 0, 100, nil)
	o.PriorDue = 300000
	o.PriorCustomerID = "cust-a"
	o = o.SetCustomer(credit.Customer{ID: "cust-b", Name: "Toko Baru", Limit: 400000, Debt: 350000}).
		SetPayment(pricing.Payment{Method: pricing.PaymentCash, Amount: 50000}, nil)

	q := o.Quote(credit.BlockOnExceed)
	require.Equal(t, pricing.Money(300000), q.Verdict.Shortfall)
	require.False(t, q.Verdict.Eligible)
	require.Equal(t, credit.ReasonLimitExceeded, q.Verdict.Blocks[0].Code)

	back := o.SetCustomer(credit.Customer{ID: "cust-a", Name: "Toko Lama", Limit: 400000, Debt: 350000})
	require.True(t, back.Quote(credit.BlockOnExceed).Verdict.Eligible)
}

func TestAddLineHugeQuantityOnExistingLine(t *testing.T) {
	o, _ := New("c1", ChannelKasir).AddLine(indomie(), 1, 0, nil)
	o, w := o.AddLine(indomie(), 1537228672809129302, 0, nil)

	require.Len(t, w, 1)
	require.Equal(t, inventory.Clamped, w[0].Outcome)
	require.Equal(t, 60, o.Lines[0].TotalUnits)
	require.Equal(t, 5, o.Lines[0].Packages)
}

func TestPayload(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	o, _ := New("c1", ChannelKasir).AddLine(indomie(), 1, 3, nil)
	o = o.SetLineDiscount("indomie", pricing.Discount{Mode: pricing.DiscountAmount, Value: 2000}).
		SetNotaDiscount(pricing.Discount{Mode: pricing.DiscountAmount, Value: 1000}).
		SetCustomer(credit.Customer{ID: "cust-1", Name: "Bu Sari"}).
		SetPayment(pricing.Payment{Method: pricing.PaymentSplit, Cash: 50000, Transfer: 50000}, &due)

	p := o.Payload()
	require.Len(t, p.Items, 1)
	require.Equal(t, PayloadItem{
		ProductID:          "indomie",
		Packages:           1,
		LooseUnits:         3,
		TotalUnits:         15,
		UnitPrice:          120000,
		PerPackageDiscount: 2000,
		Weight:             o.Lines[0].Weight,
	}, p.Items[0])
	require.Equal(t, pricing.Money(1000), p.NotaDiscountAmount)
	require.Equal(t, pricing.PaymentSplit, p.PaymentMethod)
	require.Nil(t, p.AmountPaid)
	require.Equal(t, pricing.Money(50000), *p.Cash)
	require.Equal(t, pricing.Money(50000), *p.Transfer)
	require.Equal(t, "cust-1", p.CustomerID)
	require.Equal(t, "2026-04-01", p.DueDate)

	cash := New("c2", ChannelKasir).recalc().Payload()
	require.Equal(t, pricing.PaymentCash, cash.PaymentMethod)
	require.NotNil(t, cash.AmountPaid)
	require.Empty(t, cash.DueDate)
}

func TestParseChannel(t *testing.T) {
	ch, ok := ParseChannel("")
	require.True(t, ok)
	require.Equal(t, ChannelKasir, ch)
	ch, ok = ParseChannel("sales")
	require.True(t, ok)
	require.Equal(t, ChannelSales, ch)
	_, ok = ParseChannel("online")
	require.False(t, ok)
}

func codes(notices []credit.Notice) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Code)
	}
	return out
}
