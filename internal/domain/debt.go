package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	daysInYear = decimal.NewFromInt(36500)
)

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Debt) RemainingAmount() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount)
}

func (d Debt) IsOverdue(today time.Time) bool {
	if d.Status == DebtPaid || d.Status == DebtCancelled {
		return false
	}
	return DateOf(d.DueDate).Before(DateOf(today))
}

func (d Debt) DaysOverdue(today time.Time) int {
	if !d.IsOverdue(today) {
		return 0
	}
	return int(DateOf(today).Sub(DateOf(d.DueDate)).Hours() / 24)
}

func (d Debt) PaymentPercentage() decimal.Decimal {
	if !d.TotalAmount.IsPositive() {
		return decimal.Zero
	}
	return d.PaidAmount.Mul(hundred).Div(d.TotalAmount).Round(2)
}

// Interest is simple daily interest on the remaining amount, zero unless overdue.
func (d Debt) Interest(today time.Time) decimal.Decimal {
	days := d.DaysOverdue(today)
	if days == 0 || d.InterestRate.IsZero() {
		return decimal.Zero
	}
	return d.RemainingAmount().
		Mul(d.InterestRate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(daysInYear).
		Round(2)
}

// NextStatus derives the status from the paid amount and due date.
// Cancelled debts keep their status.
func (d Debt) NextStatus(today time.Time) string {
	switch {
	case d.Status == DebtCancelled:
		return DebtCancelled
	case d.PaidAmount.GreaterThanOrEqual(d.TotalAmount):
		return DebtPaid
	case d.PaidAmount.IsPositive():
		return DebtPartiallyPaid
	case DateOf(d.DueDate).Before(DateOf(today)):
		return DebtOverdue
	default:
		return DebtPending
	}
}

// SaleStatusFor maps a debt status onto the payment status of its sale.
func SaleStatusFor(debtStatus string) string {
	switch debtStatus {
	case DebtPaid:
		return SalePaid
	case DebtPartiallyPaid:
		return SalePartial
	default:
		return SalePending
	}
}

func IsValidDebtStatus(status string) bool {
	switch status {
	case DebtPending, DebtOverdue, DebtPartiallyPaid, DebtPaid, DebtCancelled:
		return true
	}
	return false
}

func IsValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentBankTransfer, PaymentCheck, PaymentCreditCard, PaymentZaad, PaymentEdahab, PaymentOther:
		return true
	}
	return false
}

func IsValidPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func IsValidSaleMethod(method string) bool {
	switch method {
	case SaleMethodCash, SaleMethodZaad, SaleMethodEdahab, SaleMethodCredit:
		return true
	}
	return false
}

func IsValidReminderType(kind string) bool {
	switch kind {
	case ReminderEmail, ReminderSMS, ReminderPhone, ReminderLetter:
		return true
	}
	return false
}

func IsValidCustomerType(kind string) bool {
	switch kind {
	case CustomerIndividual, CustomerCompany, CustomerGovernment, CustomerNGO:
		return true
	}
	return false
}

func IsValidCustomerStatus(status string) bool {
	switch status {
	case CustomerActive, CustomerInactive, CustomerBlacklisted:
		return true
	}
	return false
}
