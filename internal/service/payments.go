package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/report"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

// checkPayable reports why amount cannot be applied to debt, if at all.
func checkPayable(debt domain.Debt, amount decimal.Decimal) error {
	switch debt.Status {
	case domain.DebtPaid:
		return domain.Invalid("debt_id", "debt is already paid")
	case domain.DebtCancelled:
		return domain.Invalid("debt_id", "debt is cancelled")
	}
	if amount.GreaterThan(debt.RemainingAmount()) {
		return domain.Invalid("amount",
			"payment amount %s exceeds remaining amount %s", amount.StringFixed(2), debt.RemainingAmount().StringFixed(2))
	}
	return nil
}

// applyPayment credits a completed payment to the locked debt, sale and
// customer.
func (s *Service) applyPayment(ctx context.Context, tx store.Tx, debt *domain.Debt, sale *domain.Sale, customer *domain.Customer, payment domain.DebtPayment) error {
	now := s.clock()
	paidOn := domain.DateOf(payment.PaymentDate)
	debt.PaidAmount = debt.PaidAmount.Add(payment.Amount)
	debt.LastPaymentDate = &paidOn
	debt.Status = debt.NextStatus(s.today())
	debt.UpdatedAt = now
	if err := tx.UpdateDebt(ctx, *debt); err != nil {
		return err
	}
	if err := adjustOutstanding(ctx, tx, customer, payment.Amount.Neg(), now); err != nil {
		return err
	}
	return syncSaleStatus(ctx, tx, sale, *debt, now)
}

// reversePayment undoes applyPayment. The status is re-derived, so a
// past-due debt returns to overdue.
func (s *Service) reversePayment(ctx context.Context, tx store.Tx, debt *domain.Debt, sale *domain.Sale, customer *domain.Customer, payment domain.DebtPayment) error {
	if payment.Amount.GreaterThan(debt.PaidAmount) {
		return domain.Invalid("amount", "payment amount %s exceeds the %s paid on debt %s",
			payment.Amount.StringFixed(2), debt.PaidAmount.StringFixed(2), debt.ID)
	}

	now := s.clock()
	debt.PaidAmount = debt.PaidAmount.Sub(payment.Amount)
	debt.Status = debt.NextStatus(s.today())
	debt.UpdatedAt = now
	if err := tx.UpdateDebt(ctx, *debt); err != nil {
		return err
	}
	if err := adjustOutstanding(ctx, tx, customer, payment.Amount, now); err != nil {
		return err
	}
	return syncSaleStatus(ctx, tx, sale, *debt, now)
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.DebtPayment, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.DebtPayment{}, err
	}

	req.DebtID = strings.TrimSpace(req.DebtID)
	if req.DebtID == "" {
		return domain.DebtPayment{}, domain.Invalid("debt_id", "debt_id is required")
	}
	amount := money(req.Amount)
	if !amount.IsPositive() {
		return domain.DebtPayment{}, domain.Invalid("amount", "payment amount must be greater than zero")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !domain.IsValidPaymentMethod(req.PaymentMethod) {
		return domain.DebtPayment{}, domain.Invalid("payment_method", "unknown payment method %q", req.PaymentMethod)
	}
	if req.Status == "" {
		req.Status = domain.PaymentStatusCompleted
	}
	if !domain.IsValidPaymentStatus(req.Status) {
		return domain.DebtPayment{}, domain.Invalid("status", "unknown payment status %q", req.Status)
	}
	paymentDate := s.today()
	if strings.TrimSpace(req.PaymentDate) != "" {
		paymentDate, err = parseDate("payment_date", req.PaymentDate)
		if err != nil {
			return domain.DebtPayment{}, err
		}
	}

	var payment domain.DebtPayment
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, sale, customer, err := lockDebtGraph(ctx, tx, req.DebtID)
		if err != nil {
			return err
		}
		if req.CustomerID != "" && req.CustomerID != debt.CustomerID {
			return domain.Invalid("customer_id", "debt %s does not belong to customer %s", debt.ID, req.CustomerID)
		}
		if err := checkPayable(*debt, amount); err != nil {
			return err
		}

		payment = domain.DebtPayment{
			ID:              xid.New("pay"),
			DebtID:          debt.ID,
			CustomerID:      debt.CustomerID,
			Amount:          amount,
			PaymentMethod:   req.PaymentMethod,
			PaymentDate:     paymentDate,
			ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
			ReceiptNumber:   strings.TrimSpace(req.ReceiptNumber),
			Status:          req.Status,
			Notes:           strings.TrimSpace(req.Notes),
			ReceivedBy:      actor.Username,
			CreatedAt:       s.clock(),
		}
		if err := tx.InsertDebtPayment(ctx, payment); err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusCompleted {
			return nil
		}
		return s.applyPayment(ctx, tx, debt, sale, customer, payment)
	})
	if err != nil {
		return domain.DebtPayment{}, err
	}

	if payment.Status == domain.PaymentStatusCompleted {
		s.metrics.PaymentApplied(payment.PaymentMethod, payment.Amount)
		s.afterDebtChange(ctx)
	}
	s.logAudit(ctx, "payment_create", "debt_payment", payment.ID, fmt.Sprintf("debt=%s,amount=%s,status=%s", payment.DebtID, payment.Amount.StringFixed(2), payment.Status))
	return payment, nil
}

// MarkPaid settles the remaining balance with one completed payment.
func (s *Service) MarkPaid(ctx context.Context, debtID string, method string) (domain.DebtPayment, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.DebtPayment{}, err
	}
	if method == "" {
		method = domain.PaymentCash
	}
	if !domain.IsValidPaymentMethod(method) {
		return domain.DebtPayment{}, domain.Invalid("payment_method", "unknown payment method %q", method)
	}

	var payment domain.DebtPayment
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, sale, customer, err := lockDebtGraph(ctx, tx, debtID)
		if err != nil {
			return err
		}
		remaining := debt.RemainingAmount()
		if err := checkPayable(*debt, remaining); err != nil {
			return err
		}
		if !remaining.IsPositive() {
			return domain.Invalid("debt_id", "debt is already paid")
		}

		payment = domain.DebtPayment{
			ID:            xid.New("pay"),
			DebtID:        debt.ID,
			CustomerID:    debt.CustomerID,
			Amount:        remaining,
			PaymentMethod: method,
			PaymentDate:   s.today(),
			Status:        domain.PaymentStatusCompleted,
			Notes:         fmt.Sprintf("Marked as paid by %s", actor.Username),
			ReceivedBy:    actor.Username,
			CreatedAt:     s.clock(),
		}
		if err := tx.InsertDebtPayment(ctx, payment); err != nil {
			return err
		}
		return s.applyPayment(ctx, tx, debt, sale, customer, payment)
	})
	if err != nil {
		return domain.DebtPayment{}, err
	}

	s.metrics.PaymentApplied(payment.PaymentMethod, payment.Amount)
	s.afterDebtChange(ctx)
	s.logAudit(ctx, "debt_mark_paid", "debt", debtID, fmt.Sprintf("payment=%s,amount=%s", payment.ID, payment.Amount.StringFixed(2)))
	return payment, nil
}

// UpdatePaymentStatus moves a payment between statuses. Entering
// completed applies it; leaving completed reverses it.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status string) (domain.DebtPayment, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.DebtPayment{}, err
	}
	if !domain.IsValidPaymentStatus(status) {
		return domain.DebtPayment{}, domain.Invalid("status", "unknown payment status %q", status)
	}

	var (
		payment  domain.DebtPayment
		previous string
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockDebtPayment(ctx, id)
		if err != nil {
			return err
		}
		payment = *locked
		previous = payment.Status
		if previous == status {
			return nil
		}

		debt, sale, customer, err := lockDebtGraph(ctx, tx, payment.DebtID)
		if err != nil {
			return err
		}

		switch {
		case status == domain.PaymentStatusCompleted:
			if err := checkPayable(*debt, payment.Amount); err != nil {
				return err
			}
			payment.Status = status
			if err := tx.UpdateDebtPayment(ctx, payment); err != nil {
				return err
			}
			return s.applyPayment(ctx, tx, debt, sale, customer, payment)
		case previous == domain.PaymentStatusCompleted:
			if err := s.reversePayment(ctx, tx, debt, sale, customer, payment); err != nil {
				return err
			}
		}
		payment.Status = status
		return tx.UpdateDebtPayment(ctx, payment)
	})
	if err != nil {
		return domain.DebtPayment{}, err
	}
	if previous == status {
		return payment, nil
	}

	switch {
	case status == domain.PaymentStatusCompleted:
		s.metrics.PaymentApplied(payment.PaymentMethod, payment.Amount)
		s.afterDebtChange(ctx)
	case previous == domain.PaymentStatusCompleted:
		s.metrics.PaymentReversed()
		s.afterDebtChange(ctx)
	}
	s.logAudit(ctx, "payment_status_update", "debt_payment", payment.ID, fmt.Sprintf("from=%s,to=%s", previous, status))
	return payment, nil
}

// DeletePayment removes a payment, reversing it first when completed.
func (s *Service) DeletePayment(ctx context.Context, id string) error {
	if _, err := s.requireWriter(ctx); err != nil {
		return err
	}

	var payment domain.DebtPayment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockDebtPayment(ctx, id)
		if err != nil {
			return err
		}
		payment = *locked

		if payment.Status == domain.PaymentStatusCompleted {
			debt, sale, customer, err := lockDebtGraph(ctx, tx, payment.DebtID)
			if err != nil {
				return err
			}
			if err := s.reversePayment(ctx, tx, debt, sale, customer, payment); err != nil {
				return err
			}
		}
		return tx.DeleteDebtPayment(ctx, id)
	})
	if err != nil {
		return err
	}

	if payment.Status == domain.PaymentStatusCompleted {
		s.metrics.PaymentReversed()
		s.afterDebtChange(ctx)
	}
	s.logAudit(ctx, "payment_delete", "debt_payment", id, fmt.Sprintf("debt=%s,amount=%s,status=%s", payment.DebtID, payment.Amount.StringFixed(2), payment.Status))
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.DebtPayment, error) {
	payment, err := s.repo.GetDebtPayment(ctx, id)
	if err != nil {
		return domain.DebtPayment{}, err
	}
	return *payment, nil
}

func (s *Service) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.DebtPayment, error) {
	if filter.Status != "" && !domain.IsValidPaymentStatus(filter.Status) {
		return nil, domain.Invalid("status", "unknown payment status %q", filter.Status)
	}
	return s.repo.ListDebtPayments(ctx, filter)
}

func (s *Service) PaymentsByCustomer(ctx context.Context, customerID string) ([]domain.DebtPayment, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.Invalid("customer_id", "customer_id parameter required")
	}
	return s.repo.ListDebtPayments(ctx, domain.PaymentFilter{CustomerID: customerID})
}

// DailyPaymentSummary totals completed payments for date (YYYY-MM-DD),
// defaulting to today.
func (s *Service) DailyPaymentSummary(ctx context.Context, date string) (domain.DailyPaymentSummary, error) {
	day := s.today()
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDate("date", date)
		if err != nil {
			return domain.DailyPaymentSummary{}, domain.Invalid("date", "Invalid date format. Use YYYY-MM-DD")
		}
		day = parsed
	}

	payments, err := s.repo.ListDebtPayments(ctx, domain.PaymentFilter{
		Status: domain.PaymentStatusCompleted,
		From:   day,
		To:     day.Add(24 * time.Hour),
	})
	if err != nil {
		return domain.DailyPaymentSummary{}, err
	}
	return report.DailyPayments(payments, day), nil
}
