package service

import (
	"context"
	"fmt"
	"strings"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.CustomerType = strings.TrimSpace(req.CustomerType)
	if req.Name == "" {
		return domain.Customer{}, domain.Invalid("name", "name is required")
	}
	if req.CustomerType == "" {
		req.CustomerType = domain.CustomerIndividual
	}
	if !domain.IsValidCustomerType(req.CustomerType) {
		return domain.Customer{}, domain.Invalid("customer_type", "unknown customer type %q", req.CustomerType)
	}
	if req.CreditLimit.IsNegative() {
		return domain.Customer{}, domain.Invalid("credit_limit", "credit limit cannot be negative")
	}

	now := s.clock()
	customer := domain.Customer{
		ID:           xid.New("cus"),
		Name:         req.Name,
		CustomerType: req.CustomerType,
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.TrimSpace(req.Email),
		Address:      strings.TrimSpace(req.Address),
		CreditLimit:  money(req.CreditLimit),
		AllowDebt:    req.AllowDebt,
		Status:       domain.CustomerActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCustomer(ctx, customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", customer.ID, fmt.Sprintf("name=%s,credit_limit=%s", customer.Name, customer.CreditLimit.StringFixed(2)))
	return customer, nil
}

// UpdateCustomer edits profile and credit terms. The outstanding balance
// only moves through debts and payments.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.Customer{}, err
	}

	var updated domain.Customer
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		customer, err := tx.LockCustomer(ctx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.Invalid("name", "name is required")
			}
			customer.Name = name
		}
		if req.CustomerType != nil {
			if !domain.IsValidCustomerType(*req.CustomerType) {
				return domain.Invalid("customer_type", "unknown customer type %q", *req.CustomerType)
			}
			customer.CustomerType = *req.CustomerType
		}
		if req.Phone != nil {
			customer.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.Email != nil {
			customer.Email = strings.TrimSpace(*req.Email)
		}
		if req.Address != nil {
			customer.Address = strings.TrimSpace(*req.Address)
		}
		if req.CreditLimit != nil {
			if req.CreditLimit.IsNegative() {
				return domain.Invalid("credit_limit", "credit limit cannot be negative")
			}
			customer.CreditLimit = money(*req.CreditLimit)
		}
		if req.AllowDebt != nil {
			customer.AllowDebt = *req.AllowDebt
		}
		if req.Status != nil {
			if !domain.IsValidCustomerStatus(*req.Status) {
				return domain.Invalid("status", "unknown customer status %q", *req.Status)
			}
			customer.Status = *req.Status
		}

		customer.UpdatedAt = s.clock()
		if err := tx.UpdateCustomer(ctx, *customer); err != nil {
			return err
		}
		updated = *customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", updated.ID, fmt.Sprintf("status=%s,credit_limit=%s", updated.Status, updated.CreditLimit.StringFixed(2)))
	return updated, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	if filter.Status != "" && !domain.IsValidCustomerStatus(filter.Status) {
		return nil, domain.Invalid("status", "unknown customer status %q", filter.Status)
	}
	return s.repo.ListCustomers(ctx, filter)
}
