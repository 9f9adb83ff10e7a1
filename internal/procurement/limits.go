package procurement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Limits holds the statically configured ceilings and tolerances.
type Limits struct {
	SupplierMonthlyCeiling   decimal.Decimal
	SupplierCreditCeiling    decimal.Decimal
	InfoRecordPriceThreshold decimal.Decimal
	HistoryWindow            int
	HistoryFactor            decimal.Decimal
	AmountTolerance          decimal.Decimal
	Currency                 string
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		SupplierMonthlyCeiling:   decimal.NewFromInt(1_000_000),
		SupplierCreditCeiling:    decimal.NewFromInt(2_000_000),
		InfoRecordPriceThreshold: decimal.NewFromInt(100_000),
		HistoryWindow:            5,
		HistoryFactor:            decimal.RequireFromString("1.5"),
		AmountTolerance:          decimal.RequireFromString("0.01"),
		Currency:                 "AUD",
	}
}

// Period is an inclusive day range.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MonthOf returns the calendar month containing day, first to last day.
func MonthOf(day time.Time) Period {
	from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return Period{From: from, To: from.AddDate(0, 1, -1)}
}

// SupplierMonthCommitment sums Quantity x NetPrice over the supplier's other
// standard purchase orders dated within the month of day. Only category F
// documents count; RFQs carry no commitment.
func SupplierMonthCommitment(ctx context.Context, r Reader, supplier string, day time.Time, excludePO string) (decimal.Decimal, error) {
	window := MonthOf(day)
	items, err := r.SupplierOrderItems(ctx, supplier, window.From, window.To, excludePO)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total())
	}
	return total, nil
}

// SupplierOutstanding sums GrossAmount over all other invoices of the supplier.
func SupplierOutstanding(ctx context.Context, r Reader, supplier, excludeInvoice string) (decimal.Decimal, error) {
	amounts, err := r.SupplierInvoiceAmounts(ctx, supplier, excludeInvoice)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// Exposure is a snapshot of a supplier's standing against both ceilings.
type Exposure struct {
	Supplier       string          `json:"supplier"`
	Period         Period          `json:"period"`
	MonthCommitted decimal.Decimal `json:"month_committed"`
	MonthCeiling   decimal.Decimal `json:"month_ceiling"`
	MonthHeadroom  decimal.Decimal `json:"month_headroom"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	CreditCeiling  decimal.Decimal `json:"credit_ceiling"`
	CreditHeadroom decimal.Decimal `json:"credit_headroom"`
	Currency       string          `json:"currency"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// ComputeExposure recomputes a supplier's exposure from source rows.
func ComputeExposure(ctx context.Context, r Reader, limits Limits, supplier string, asOf time.Time) (Exposure, error) {
	committed, err := SupplierMonthCommitment(ctx, r, supplier, asOf, "")
	if err != nil {
		return Exposure{}, err
	}
	outstanding, err := SupplierOutstanding(ctx, r, supplier, "")
	if err != nil {
		return Exposure{}, err
	}
	return Exposure{
		Supplier:       supplier,
		Period:         MonthOf(asOf),
		MonthCommitted: committed,
		MonthCeiling:   limits.SupplierMonthlyCeiling,
		MonthHeadroom:  limits.SupplierMonthlyCeiling.Sub(committed),
		Outstanding:    outstanding,
		CreditCeiling:  limits.SupplierCreditCeiling,
		CreditHeadroom: limits.SupplierCreditCeiling.Sub(outstanding),
		Currency:       limits.Currency,
		ComputedAt:     asOf,
	}, nil
}

var grouping = message.NewPrinter(language.English)

// grouped renders a ceiling with thousands separators, e.g. 1,000,000.
func grouped(d decimal.Decimal) string {
	if d.IsInteger() {
		return grouping.Sprintf("%d", d.IntPart())
	}
	return grouping.Sprintf("%.2f", d.InexactFloat64())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
