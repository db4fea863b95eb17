package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(raw string) time.Time {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func debtOf(total string, paid string, due string) Debt {
	return Debt{
		TotalAmount: decimal.RequireFromString(total),
		PaidAmount:  decimal.RequireFromString(paid),
		DueDate:     day(due),
		Status:      DebtPending,
	}
}

func TestNextStatus(t *testing.T) {
	today := day("2025-03-10")

	cases := []struct {
		name string
		debt Debt
		want string
	}{
		{"unpaid before due", debtOf("100", "0", "2025-03-10"), DebtPending},
		{"unpaid past due", debtOf("100", "0", "2025-03-09"), DebtOverdue},
		{"one cent short", debtOf("100", "99.99", "2025-03-01"), DebtPartiallyPaid},
		{"exact payment", debtOf("100", "100", "2025-03-01"), DebtPaid},
		{"zero total", debtOf("0", "0", "2025-03-01"), DebtPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.debt.NextStatus(today))
		})
	}

	cancelled := debtOf("100", "40", "2025-01-01")
	cancelled.Status = DebtCancelled
	assert.Equal(t, DebtCancelled, cancelled.NextStatus(today))
}

func TestNextStatusIsIdempotent(t *testing.T) {
	today := day("2025-03-10")
	debt := debtOf("250", "30", "2025-02-01")

	debt.Status = debt.NextStatus(today)
	again := debt.NextStatus(today)
	assert.Equal(t, debt.Status, again)
}

func TestOverdueAndInterest(t *testing.T) {
	today := day("2025-03-10")
	debt := debtOf("1000", "270", "2025-02-28")
	debt.InterestRate = decimal.RequireFromString("25")

	assert.True(t, debt.IsOverdue(today))
	assert.Equal(t, 10, debt.DaysOverdue(today))
	// 730 * 25 * 10 / 36500
	assert.Equal(t, "5.00", debt.Interest(today).StringFixed(2))
	assert.Equal(t, "27.00", debt.PaymentPercentage().StringFixed(2))

	unpaid := debtOf("500", "0", "2025-02-28")
	unpaid.InterestRate = decimal.RequireFromString("36.5")
	assert.Equal(t, "5.00", unpaid.Interest(today).StringFixed(2))
	assert.True(t, unpaid.Interest(day("2025-02-28")).IsZero())

	debt.Status = DebtPaid
	assert.False(t, debt.IsOverdue(today))
	assert.True(t, debt.Interest(today).IsZero())
}

func TestDateOfNormalizesToUTCMidnight(t *testing.T) {
	zone := time.FixedZone("EAT", 3*60*60)
	local := time.Date(2025, 3, 11, 1, 30, 0, 0, zone)

	got := DateOf(local)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestSaleStatusFor(t *testing.T) {
	assert.Equal(t, SalePaid, SaleStatusFor(DebtPaid))
	assert.Equal(t, SalePartial, SaleStatusFor(DebtPartiallyPaid))
	assert.Equal(t, SalePending, SaleStatusFor(DebtOverdue))
	assert.Equal(t, SalePending, SaleStatusFor(DebtPending))
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := Invalid("amount", "amount %s exceeds remaining %s", "10.00", "5.00")

	require.True(t, errors.Is(err, ErrValidation))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)
	assert.Contains(t, err.Error(), "exceeds remaining 5.00")
}
