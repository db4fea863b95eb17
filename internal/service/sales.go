package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

// saleDraft is a validated sale before stock is touched.
type saleDraft struct {
	customerID    string
	paymentMethod string
	items         []domain.SaleItemInput
	tax           decimal.Decimal
	discount      decimal.Decimal
	dueDate       *time.Time
	notes         string
}

type creditTerms struct {
	interestRate decimal.Decimal
	priority     string
	paymentTerms string
}

// validateItems rounds quantities to two places in place, so the stock
// decrement and the recorded line use the same figure.
func validateItems(items []domain.SaleItemInput) error {
	if len(items) == 0 {
		return domain.Invalid("items", "at least one item is required")
	}
	for i := range items {
		item := &items[i]
		if strings.TrimSpace(item.MaterialID) == "" {
			return domain.Invalid("items", "item %d: material_id is required", i+1)
		}
		item.Quantity = money(item.Quantity)
		if !item.Quantity.IsPositive() {
			return domain.Invalid("items", "item %d: quantity must be greater than zero", i+1)
		}
		if item.UnitPrice != nil && !item.UnitPrice.IsPositive() {
			return domain.Invalid("items", "item %d: unit_price must be greater than zero", i+1)
		}
	}
	return nil
}

func validateAdjustments(tax decimal.Decimal, discount decimal.Decimal) error {
	if tax.IsNegative() {
		return domain.Invalid("tax", "tax cannot be negative")
	}
	if discount.IsNegative() {
		return domain.Invalid("discount", "discount cannot be negative")
	}
	return nil
}

// placeSale locks the materials, decrements stock and inserts the sale.
// The customer row must already be locked.
func (s *Service) placeSale(ctx context.Context, tx store.Tx, actor domain.Actor, draft saleDraft, status string) (domain.Sale, error) {
	ids := make([]string, 0, len(draft.items))
	needed := make(map[string]decimal.Decimal, len(draft.items))
	for _, item := range draft.items {
		if _, seen := needed[item.MaterialID]; !seen {
			ids = append(ids, item.MaterialID)
		}
		needed[item.MaterialID] = needed[item.MaterialID].Add(item.Quantity)
	}

	materials, err := tx.LockMaterials(ctx, ids)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, domain.Invalid("items", "one or more materials do not exist")
	}
	if err != nil {
		return domain.Sale{}, err
	}

	for _, id := range ids {
		material := materials[id]
		if material.QuantityInStock.LessThan(needed[id]) {
			return domain.Sale{}, fmt.Errorf("%w: %s has %s %s, requested %s",
				store.ErrInsufficientStock, material.Name, material.QuantityInStock.String(), material.Unit, needed[id].String())
		}
	}

	now := s.clock()
	sale := domain.Sale{
		ID:            xid.New("sale"),
		CustomerID:    draft.customerID,
		SaleDate:      now,
		PaymentMethod: draft.paymentMethod,
		Tax:           money(draft.tax),
		Discount:      money(draft.discount),
		PaymentStatus: status,
		DueDate:       draft.dueDate,
		Notes:         strings.TrimSpace(draft.notes),
		CreatedBy:     actor.Username,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sale.InvoiceNumber = invoiceNumber(now, sale.ID)

	for _, input := range draft.items {
		price := materials[input.MaterialID].PricePerUnit
		if input.UnitPrice != nil {
			price = money(*input.UnitPrice)
		}
		qty := input.Quantity
		line := domain.SaleItem{
			ID:         xid.New("item"),
			SaleID:     sale.ID,
			MaterialID: input.MaterialID,
			Quantity:   qty,
			UnitPrice:  price,
			TotalPrice: money(qty.Mul(price)),
		}
		sale.Items = append(sale.Items, line)
		sale.Subtotal = sale.Subtotal.Add(line.TotalPrice)
	}
	sale.TotalAmount = sale.Subtotal.Add(sale.Tax).Sub(sale.Discount)
	if !sale.TotalAmount.IsPositive() {
		return domain.Sale{}, domain.Invalid("total_amount", "sale total must be greater than zero")
	}

	for _, id := range ids {
		if err := tx.SetMaterialStock(ctx, id, materials[id].QuantityInStock.Sub(needed[id])); err != nil {
			return domain.Sale{}, err
		}
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

func invoiceNumber(at time.Time, saleID string) string {
	suffix := strings.TrimPrefix(saleID, "sale-")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), strings.ToUpper(suffix))
}

// CreateCreditSale records the sale and its debt in one transaction. The
// whole total is checked against the customer's credit limit first.
func (s *Service) CreateCreditSale(ctx context.Context, req domain.CreditSaleRequest) (domain.Sale, domain.Debt, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.Sale{}, domain.Debt{}, err
	}

	if strings.TrimSpace(req.DueDate) == "" {
		return domain.Sale{}, domain.Debt{}, domain.Invalid("due_date", "due_date is required for credit sales")
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return domain.Sale{}, domain.Debt{}, err
	}
	if !due.After(s.today()) {
		return domain.Sale{}, domain.Debt{}, domain.Invalid("due_date", "due date must be in the future")
	}

	draft := saleDraft{
		customerID:    strings.TrimSpace(req.CustomerID),
		paymentMethod: domain.SaleMethodCredit,
		items:         req.Items,
		tax:           req.Tax,
		discount:      req.Discount,
		dueDate:       &due,
		notes:         req.Notes,
	}
	terms := creditTerms{
		interestRate: req.InterestRate,
		priority:     req.Priority,
		paymentTerms: req.PaymentTerms,
	}
	return s.createCreditSale(ctx, actor, draft, terms)
}

func (s *Service) createCreditSale(ctx context.Context, actor domain.Actor, draft saleDraft, terms creditTerms) (domain.Sale, domain.Debt, error) {
	if draft.customerID == "" {
		return domain.Sale{}, domain.Debt{}, domain.Invalid("customer_id", "customer_id is required")
	}
	if err := validateItems(draft.items); err != nil {
		return domain.Sale{}, domain.Debt{}, err
	}
	if err := validateAdjustments(draft.tax, draft.discount); err != nil {
		return domain.Sale{}, domain.Debt{}, err
	}
	if !validRate(terms.interestRate) {
		return domain.Sale{}, domain.Debt{}, domain.Invalid("interest_rate", "interest rate must be between 0 and 100")
	}
	if terms.priority == "" {
		terms.priority = domain.PriorityMedium
	}
	if !domain.IsValidPriority(terms.priority) {
		return domain.Sale{}, domain.Debt{}, domain.Invalid("priority", "unknown priority %q", terms.priority)
	}

	var (
		sale domain.Sale
		debt domain.Debt
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		customer, err := tx.LockCustomer(ctx, draft.customerID)
		if err != nil {
			return err
		}

		sale, err = s.placeSale(ctx, tx, actor, draft, domain.SalePending)
		if err != nil {
			return err
		}
		if err := s.checkCredit("credit_sale", *customer, sale.TotalAmount, decimal.Zero); err != nil {
			return err
		}

		now := s.clock()
		debt = domain.Debt{
			ID:           xid.New("debt"),
			CustomerID:   customer.ID,
			SaleID:       sale.ID,
			TotalAmount:  sale.TotalAmount,
			PaidAmount:   decimal.Zero,
			InterestRate: money(terms.interestRate),
			DueDate:      *draft.dueDate,
			Status:       domain.DebtPending,
			Priority:     terms.priority,
			PaymentTerms: strings.TrimSpace(terms.paymentTerms),
			Notes:        fmt.Sprintf("Credit sale %s", sale.InvoiceNumber),
			CreatedBy:    actor.Username,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if notes := strings.TrimSpace(draft.notes); notes != "" {
			debt.Notes = notes
		}
		debt.Status = debt.NextStatus(s.today())

		if err := tx.InsertDebt(ctx, debt); err != nil {
			return err
		}
		return adjustOutstanding(ctx, tx, customer, debt.RemainingAmount(), now)
	})
	if err != nil {
		return domain.Sale{}, domain.Debt{}, err
	}

	s.metrics.DebtCreated("credit_sale")
	s.afterDebtChange(ctx)
	s.logAudit(ctx, "credit_sale_create", "sale", sale.ID, fmt.Sprintf("debt=%s,customer=%s,total=%s", debt.ID, debt.CustomerID, sale.TotalAmount.StringFixed(2)))
	return sale, debt, nil
}

// CreateSale records a sale. Credit sales take the same path as
// CreateCreditSale with the due date defaulting to DefaultDueDays out.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.requireWriter(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.SaleMethodCash
	}
	if !domain.IsValidSaleMethod(req.PaymentMethod) {
		return domain.Sale{}, domain.Invalid("payment_method", "unknown payment method %q", req.PaymentMethod)
	}

	draft := saleDraft{
		customerID:    strings.TrimSpace(req.CustomerID),
		paymentMethod: req.PaymentMethod,
		items:         req.Items,
		tax:           req.Tax,
		discount:      req.Discount,
		notes:         req.Notes,
	}

	if req.PaymentMethod == domain.SaleMethodCredit {
		due := s.today().AddDate(0, 0, s.dueDays)
		if strings.TrimSpace(req.DueDate) != "" {
			due, err = parseDate("due_date", req.DueDate)
			if err != nil {
				return domain.Sale{}, err
			}
			if !due.After(s.today()) {
				return domain.Sale{}, domain.Invalid("due_date", "due date must be in the future")
			}
		}
		draft.dueDate = &due
		sale, _, err := s.createCreditSale(ctx, actor, draft, creditTerms{interestRate: req.InterestRate})
		return sale, err
	}

	if draft.customerID == "" {
		return domain.Sale{}, domain.Invalid("customer_id", "customer_id is required")
	}
	if err := validateItems(draft.items); err != nil {
		return domain.Sale{}, err
	}
	if err := validateAdjustments(draft.tax, draft.discount); err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockCustomer(ctx, draft.customerID); err != nil {
			return err
		}
		sale, err = s.placeSale(ctx, tx, actor, draft, domain.SalePaid)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("method=%s,total=%s", sale.PaymentMethod, sale.TotalAmount.StringFixed(2)))
	return sale, nil
}

// UpdateSale edits tax, discount and notes. A changed total on a credit
// sale flows into its debt and the customer's balance.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.Sale{}, err
	}
	if req.Tax != nil && req.Tax.IsNegative() {
		return domain.Sale{}, domain.Invalid("tax", "tax cannot be negative")
	}
	if req.Discount != nil && req.Discount.IsNegative() {
		return domain.Sale{}, domain.Invalid("discount", "discount cannot be negative")
	}

	var (
		updated domain.Sale
		delta   decimal.Decimal
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		debt, err := tx.LockDebtBySale(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if debt != nil && debt.IsDeleted {
			debt = nil
		}

		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}

		if req.Tax != nil {
			sale.Tax = money(*req.Tax)
		}
		if req.Discount != nil {
			sale.Discount = money(*req.Discount)
		}
		if req.Notes != nil {
			sale.Notes = strings.TrimSpace(*req.Notes)
		}
		newTotal := sale.Subtotal.Add(sale.Tax).Sub(sale.Discount)
		if !newTotal.IsPositive() {
			return domain.Invalid("total_amount", "sale total must be greater than zero")
		}
		oldTotal := sale.TotalAmount
		sale.TotalAmount = newTotal
		now := s.clock()
		sale.UpdatedAt = now

		if sale.PaymentMethod == domain.SaleMethodCredit && debt != nil && !newTotal.Equal(oldTotal) {
			if debt.Status == domain.DebtCancelled {
				return domain.Invalid("total_amount", "the debt for this sale is cancelled")
			}
			customer, err := tx.LockCustomer(ctx, debt.CustomerID)
			if err != nil {
				return err
			}

			delta = newTotal.Sub(debt.TotalAmount)
			if delta.IsPositive() {
				if err := s.checkCredit("sale_update", *customer, delta, decimal.Zero); err != nil {
					return err
				}
			}
			if newTotal.LessThan(debt.PaidAmount) {
				return domain.Invalid("total_amount",
					"new total %s is below the %s already paid", newTotal.StringFixed(2), debt.PaidAmount.StringFixed(2))
			}

			debt.TotalAmount = newTotal
			debt.Status = debt.NextStatus(s.today())
			debt.UpdatedAt = now
			if err := tx.UpdateDebt(ctx, *debt); err != nil {
				return err
			}
			if err := adjustOutstanding(ctx, tx, customer, delta, now); err != nil {
				return err
			}
			sale.PaymentStatus = domain.SaleStatusFor(debt.Status)
		}

		if err := tx.UpdateSale(ctx, *sale); err != nil {
			return err
		}
		updated = *sale
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if !delta.IsZero() {
		s.afterDebtChange(ctx)
	}
	s.logAudit(ctx, "sale_update", "sale", updated.ID, fmt.Sprintf("total=%s,debt_delta=%s", updated.TotalAmount.StringFixed(2), delta.StringFixed(2)))
	return updated, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.PaymentMethod != "" && !domain.IsValidSaleMethod(filter.PaymentMethod) {
		return nil, domain.Invalid("payment_method", "unknown payment method %q", filter.PaymentMethod)
	}
	return s.repo.ListSales(ctx, filter)
}
