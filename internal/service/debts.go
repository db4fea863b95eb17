package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

func (s *Service) CreateDebt(ctx context.Context, req domain.DebtCreateRequest) (domain.Debt, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.Debt{}, err
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.CustomerID == "" {
		return domain.Debt{}, domain.Invalid("customer_id", "customer_id is required")
	}
	total := money(req.TotalAmount)
	paid := money(req.PaidAmount)
	if !total.IsPositive() {
		return domain.Debt{}, domain.Invalid("total_amount", "total amount must be greater than zero")
	}
	if paid.IsNegative() {
		return domain.Debt{}, domain.Invalid("paid_amount", "paid amount cannot be negative")
	}
	if paid.GreaterThan(total) {
		return domain.Debt{}, domain.Invalid("paid_amount", "paid amount cannot exceed total amount")
	}
	if !validRate(req.InterestRate) {
		return domain.Debt{}, domain.Invalid("interest_rate", "interest rate must be between 0 and 100")
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return domain.Debt{}, err
	}
	if due.Before(s.today()) {
		return domain.Debt{}, domain.Invalid("due_date", "due date cannot be in the past")
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !domain.IsValidPriority(req.Priority) {
		return domain.Debt{}, domain.Invalid("priority", "unknown priority %q", req.Priority)
	}

	var debt domain.Debt
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var sale *domain.Sale
		if req.SaleID != "" {
			existing, err := tx.LockDebtBySale(ctx, req.SaleID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if existing != nil {
				return domain.Invalid("sale_id", "sale %s already has a debt", req.SaleID)
			}
			sale, err = tx.LockSale(ctx, req.SaleID)
			if errors.Is(err, store.ErrNotFound) {
				return domain.Invalid("sale_id", "sale %s does not exist", req.SaleID)
			}
			if err != nil {
				return err
			}
			if sale.CustomerID != req.CustomerID {
				return domain.Invalid("sale_id", "sale %s belongs to another customer", req.SaleID)
			}
		}

		customer, err := tx.LockCustomer(ctx, req.CustomerID)
		if err != nil {
			return err
		}

		now := s.clock()
		debt = domain.Debt{
			ID:           xid.New("debt"),
			CustomerID:   customer.ID,
			SaleID:       req.SaleID,
			TotalAmount:  total,
			PaidAmount:   paid,
			InterestRate: money(req.InterestRate),
			DueDate:      due,
			Priority:     req.Priority,
			PaymentTerms: strings.TrimSpace(req.PaymentTerms),
			Notes:        strings.TrimSpace(req.Notes),
			CreatedBy:    actor.Username,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		debt.Status = debt.NextStatus(s.today())

		if err := s.checkCredit("create_debt", *customer, debt.RemainingAmount(), decimal.Zero); err != nil {
			return err
		}
		if err := tx.InsertDebt(ctx, debt); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.Invalid("sale_id", "sale %s already has a debt", req.SaleID)
			}
			return err
		}
		if err := adjustOutstanding(ctx, tx, customer, debt.RemainingAmount(), now); err != nil {
			return err
		}
		return syncSaleStatus(ctx, tx, sale, debt, now)
	})
	if err != nil {
		return domain.Debt{}, err
	}

	s.metrics.DebtCreated("explicit")
	s.afterDebtChange(ctx)
	s.logAudit(ctx, "debt_create", "debt", debt.ID, fmt.Sprintf("customer=%s,total=%s,paid=%s", debt.CustomerID, debt.TotalAmount.StringFixed(2), debt.PaidAmount.StringFixed(2)))
	return debt, nil
}

// UpdateDebt patches a debt and moves the customer balance by the change
// in remaining amount. Status may only be set to cancelled.
func (s *Service) UpdateDebt(ctx context.Context, id string, req domain.DebtUpdateRequest) (domain.Debt, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.Debt{}, err
	}

	var updated domain.Debt
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, sale, customer, err := lockDebtGraph(ctx, tx, id)
		if err != nil {
			return err
		}

		financial := req.TotalAmount != nil || req.PaidAmount != nil || req.InterestRate != nil || req.DueDate != nil
		if debt.Status == domain.DebtCancelled && (financial || (req.Status != nil && *req.Status != domain.DebtCancelled)) {
			return domain.Invalid("status", "cancelled debts cannot be changed")
		}

		oldRemaining := debt.RemainingAmount()
		if req.TotalAmount != nil {
			total := money(*req.TotalAmount)
			if !total.IsPositive() {
				return domain.Invalid("total_amount", "total amount must be greater than zero")
			}
			debt.TotalAmount = total
		}
		if req.PaidAmount != nil {
			paid := money(*req.PaidAmount)
			if paid.IsNegative() {
				return domain.Invalid("paid_amount", "paid amount cannot be negative")
			}
			recorded, err := tx.CompletedPaymentsTotal(ctx, debt.ID)
			if err != nil {
				return err
			}
			if paid.LessThan(recorded) {
				return domain.Invalid("paid_amount",
					"paid amount %s is below the %s of completed payments recorded; delete or refund payments instead",
					paid.StringFixed(2), recorded.StringFixed(2))
			}
			debt.PaidAmount = paid
		}
		if debt.PaidAmount.GreaterThan(debt.TotalAmount) {
			return domain.Invalid("paid_amount", "paid amount cannot exceed total amount")
		}
		if req.InterestRate != nil {
			if !validRate(*req.InterestRate) {
				return domain.Invalid("interest_rate", "interest rate must be between 0 and 100")
			}
			debt.InterestRate = money(*req.InterestRate)
		}
		if req.DueDate != nil {
			due, err := parseDate("due_date", *req.DueDate)
			if err != nil {
				return err
			}
			if !due.Equal(debt.DueDate) && due.Before(s.today()) {
				return domain.Invalid("due_date", "due date cannot be in the past")
			}
			debt.DueDate = due
		}
		if req.Priority != nil {
			if !domain.IsValidPriority(*req.Priority) {
				return domain.Invalid("priority", "unknown priority %q", *req.Priority)
			}
			debt.Priority = *req.Priority
		}
		if req.PaymentTerms != nil {
			debt.PaymentTerms = strings.TrimSpace(*req.PaymentTerms)
		}
		if req.Notes != nil {
			debt.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.Status != nil && *req.Status != debt.Status {
			if *req.Status != domain.DebtCancelled {
				return domain.Invalid("status", "status is derived from payments; only cancelled may be set")
			}
			if debt.Status == domain.DebtPaid {
				return domain.Invalid("status", "paid debts cannot be cancelled")
			}
			debt.Status = domain.DebtCancelled
		}

		newRemaining := debt.RemainingAmount()
		if newRemaining.GreaterThan(oldRemaining) {
			if err := s.checkCredit("update_debt", *customer, newRemaining, oldRemaining); err != nil {
				return err
			}
		}

		now := s.clock()
		debt.Status = debt.NextStatus(s.today())
		debt.UpdatedAt = now
		if err := tx.UpdateDebt(ctx, *debt); err != nil {
			return err
		}
		if err := adjustOutstanding(ctx, tx, customer, newRemaining.Sub(oldRemaining), now); err != nil {
			return err
		}
		if err := syncSaleStatus(ctx, tx, sale, *debt, now); err != nil {
			return err
		}
		updated = *debt
		return nil
	})
	if err != nil {
		return domain.Debt{}, err
	}

	s.afterDebtChange(ctx)
	s.logAudit(ctx, "debt_update", "debt", updated.ID, fmt.Sprintf("total=%s,paid=%s,status=%s", updated.TotalAmount.StringFixed(2), updated.PaidAmount.StringFixed(2), updated.Status))
	return updated, nil
}

// DeleteDebt soft-deletes a debt and releases its remaining amount from
// the customer's balance.
func (s *Service) DeleteDebt(ctx context.Context, id string) error {
	if _, err := s.requireWriter(ctx); err != nil {
		return err
	}

	var released decimal.Decimal
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, _, customer, err := lockDebtGraph(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.clock()
		released = debt.RemainingAmount()
		debt.IsDeleted = true
		debt.UpdatedAt = now
		if err := tx.UpdateDebt(ctx, *debt); err != nil {
			return err
		}
		return adjustOutstanding(ctx, tx, customer, released.Neg(), now)
	})
	if err != nil {
		return err
	}

	s.afterDebtChange(ctx)
	s.logAudit(ctx, "debt_delete", "debt", id, fmt.Sprintf("released=%s", released.StringFixed(2)))
	return nil
}

func (s *Service) GetDebt(ctx context.Context, id string) (domain.Debt, error) {
	debt, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return domain.Debt{}, err
	}
	return *debt, nil
}

func (s *Service) ListDebts(ctx context.Context, filter domain.DebtFilter, overdueOnly bool) ([]domain.Debt, error) {
	if filter.Status != "" && !domain.IsValidDebtStatus(filter.Status) {
		return nil, domain.Invalid("status", "unknown debt status %q", filter.Status)
	}
	if filter.Priority != "" && !domain.IsValidPriority(filter.Priority) {
		return nil, domain.Invalid("priority", "unknown priority %q", filter.Priority)
	}

	debts, err := s.repo.ListDebts(ctx, filter)
	if err != nil || !overdueOnly {
		return debts, err
	}

	today := s.today()
	overdue := make([]domain.Debt, 0, len(debts))
	for _, debt := range debts {
		if debt.IsOverdue(today) {
			overdue = append(overdue, debt)
		}
	}
	return overdue, nil
}

// RefreshOverdueStatuses re-derives the status of every open debt that is
// past due and persists the ones that changed. It returns those debts with
// their current status.
func (s *Service) RefreshOverdueStatuses(ctx context.Context) ([]domain.Debt, int, error) {
	debts, err := s.repo.ListDebts(ctx, domain.DebtFilter{})
	if err != nil {
		return nil, 0, err
	}

	today := s.today()
	result := make([]domain.Debt, 0, 8)
	changed := 0
	for _, candidate := range debts {
		if !candidate.DueDate.Before(today) {
			continue
		}
		switch candidate.Status {
		case domain.DebtPending, domain.DebtPartiallyPaid, domain.DebtOverdue:
		default:
			continue
		}

		var refreshed domain.Debt
		err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			debt, err := tx.LockDebt(ctx, candidate.ID)
			if err != nil {
				return err
			}
			refreshed = *debt
			next := debt.NextStatus(today)
			if next == debt.Status {
				return nil
			}
			refreshed.Status = next
			refreshed.UpdatedAt = s.clock()
			if err := tx.UpdateDebt(ctx, refreshed); err != nil {
				return err
			}
			changed++
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, changed, err
		}
		result = append(result, refreshed)
	}

	if changed > 0 {
		s.afterDebtChange(ctx)
		s.log.Info().Int("refreshed", changed).Msg("overdue statuses refreshed")
	}
	return result, changed, nil
}

// OverdueDebts lists open past-due debts after refreshing their status.
func (s *Service) OverdueDebts(ctx context.Context) ([]domain.Debt, error) {
	debts, _, err := s.RefreshOverdueStatuses(ctx)
	return debts, err
}

// DebtViews renders debts with customer names and derived fields as of today.
func (s *Service) DebtViews(ctx context.Context, debts []domain.Debt) ([]domain.DebtView, error) {
	names := make(map[string]string)
	for _, debt := range debts {
		if _, ok := names[debt.CustomerID]; ok {
			continue
		}
		customer, err := s.repo.GetCustomer(ctx, debt.CustomerID)
		if errors.Is(err, store.ErrNotFound) {
			names[debt.CustomerID] = ""
			continue
		}
		if err != nil {
			return nil, err
		}
		names[debt.CustomerID] = customer.Name
	}

	today := s.today()
	views := make([]domain.DebtView, 0, len(debts))
	for _, debt := range debts {
		views = append(views, domain.NewDebtView(debt, names[debt.CustomerID], today))
	}
	return views, nil
}

func (s *Service) DebtView(ctx context.Context, debt domain.Debt) (domain.DebtView, error) {
	views, err := s.DebtViews(ctx, []domain.Debt{debt})
	if err != nil {
		return domain.DebtView{}, err
	}
	return views[0], nil
}
