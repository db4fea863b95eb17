package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
)

// ReconcileCustomer recomputes the outstanding balance from the customer's
// live debts and corrects the stored value when they disagree.
func (s *Service) ReconcileCustomer(ctx context.Context, customerID string) (domain.ReconcileResult, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ReconcileResult{}, err
	}
	return s.reconcile(ctx, customerID)
}

// ReconcileAll runs ReconcileCustomer over every customer.
func (s *Service) ReconcileAll(ctx context.Context) ([]domain.ReconcileResult, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	customers, err := s.repo.ListCustomers(ctx, domain.CustomerFilter{})
	if err != nil {
		return nil, err
	}
	results := make([]domain.ReconcileResult, 0, len(customers))
	for _, customer := range customers {
		result, err := s.reconcile(ctx, customer.ID)
		if err != nil {
			return results, fmt.Errorf("reconcile customer %s: %w", customer.ID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) reconcile(ctx context.Context, customerID string) (domain.ReconcileResult, error) {
	var (
		recorded decimal.Decimal
		computed decimal.Decimal
		adjusted bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debts, err := tx.LockCustomerDebts(ctx, customerID)
		if err != nil {
			return err
		}
		customer, err := tx.LockCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		computed = decimal.Zero
		for _, debt := range debts {
			computed = computed.Add(debt.RemainingAmount())
		}
		recorded = customer.OutstandingBalance
		if recorded.Equal(computed) {
			return nil
		}

		adjusted = true
		return adjustOutstanding(ctx, tx, customer, computed.Sub(recorded), s.clock())
	})
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	result := domain.ReconcileResult{
		CustomerID: customerID,
		Recorded:   domain.NewMoney(recorded),
		Computed:   domain.NewMoney(computed),
		Drift:      domain.NewMoney(computed.Sub(recorded)),
		Adjusted:   adjusted,
	}
	if adjusted {
		s.metrics.BalanceCorrected()
		s.log.Warn().
			Str("customer_id", customerID).
			Str("recorded", string(result.Recorded)).
			Str("computed", string(result.Computed)).
			Msg("outstanding balance corrected")
		s.logAudit(ctx, "customer_reconcile", "customer", customerID, fmt.Sprintf("recorded=%s,computed=%s", result.Recorded, result.Computed))
	}
	return result, nil
}
