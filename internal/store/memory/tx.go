package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
)

// memTx mutates the live state directly; the store lock is already held.
type memTx struct {
	st *state
}

func (t *memTx) InsertCustomer(_ context.Context, customer domain.Customer) error {
	if _, exists := t.st.customers[customer.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.customers[customer.ID] = customer
	return nil
}

func (t *memTx) LockCustomer(_ context.Context, id string) (*domain.Customer, error) {
	customer, ok := t.st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (t *memTx) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	if _, ok := t.st.customers[customer.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.customers[customer.ID] = customer
	return nil
}

func (t *memTx) InsertMaterial(_ context.Context, material domain.Material) error {
	for _, existing := range t.st.materials {
		if existing.SKU == material.SKU {
			return store.ErrDuplicate
		}
	}
	t.st.materials[material.ID] = material
	return nil
}

func (t *memTx) LockMaterials(_ context.Context, ids []string) (map[string]domain.Material, error) {
	result := make(map[string]domain.Material, len(ids))
	for _, id := range ids {
		material, ok := t.st.materials[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		result[id] = material
	}
	return result, nil
}

func (t *memTx) SetMaterialStock(_ context.Context, id string, qty decimal.Decimal) error {
	material, ok := t.st.materials[id]
	if !ok {
		return store.ErrNotFound
	}
	if qty.IsNegative() {
		return store.ErrInsufficientStock
	}
	material.QuantityInStock = qty
	t.st.materials[id] = material
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.st.sales[sale.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.sales[sale.ID] = copySale(sale)
	return nil
}

func (t *memTx) LockSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := copySale(sale)
	return &copied, nil
}

func (t *memTx) UpdateSale(_ context.Context, sale domain.Sale) error {
	if _, ok := t.st.sales[sale.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.sales[sale.ID] = copySale(sale)
	return nil
}

func (t *memTx) InsertDebt(_ context.Context, debt domain.Debt) error {
	if _, exists := t.st.debts[debt.ID]; exists {
		return store.ErrDuplicate
	}
	if debt.SaleID != "" {
		for _, existing := range t.st.debts {
			if existing.SaleID == debt.SaleID {
				return store.ErrDuplicate
			}
		}
	}
	t.st.debts[debt.ID] = debt
	return nil
}

func (t *memTx) LockDebt(_ context.Context, id string) (*domain.Debt, error) {
	debt, ok := t.st.debts[id]
	if !ok || debt.IsDeleted {
		return nil, store.ErrNotFound
	}
	return &debt, nil
}

func (t *memTx) LockDebtBySale(_ context.Context, saleID string) (*domain.Debt, error) {
	for _, debt := range t.st.debts {
		if debt.SaleID == saleID {
			found := debt
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) LockCustomerDebts(_ context.Context, customerID string) ([]domain.Debt, error) {
	result := make([]domain.Debt, 0, 8)
	for _, debt := range t.st.debts {
		if debt.CustomerID == customerID && !debt.IsDeleted {
			result = append(result, debt)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *memTx) UpdateDebt(_ context.Context, debt domain.Debt) error {
	if _, ok := t.st.debts[debt.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.debts[debt.ID] = debt
	return nil
}

func (t *memTx) InsertDebtPayment(_ context.Context, payment domain.DebtPayment) error {
	if _, exists := t.st.payments[payment.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.payments[payment.ID] = payment
	return nil
}

func (t *memTx) LockDebtPayment(_ context.Context, id string) (*domain.DebtPayment, error) {
	payment, ok := t.st.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &payment, nil
}

func (t *memTx) UpdateDebtPayment(_ context.Context, payment domain.DebtPayment) error {
	if _, ok := t.st.payments[payment.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.payments[payment.ID] = payment
	return nil
}

func (t *memTx) DeleteDebtPayment(_ context.Context, id string) error {
	if _, ok := t.st.payments[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.payments, id)
	return nil
}

func (t *memTx) CompletedPaymentsTotal(_ context.Context, debtID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, payment := range t.st.payments {
		if payment.DebtID == debtID && payment.Status == domain.PaymentStatusCompleted {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

func (t *memTx) InsertDebtReminder(_ context.Context, reminder domain.DebtReminder) error {
	if _, exists := t.st.reminders[reminder.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.reminders[reminder.ID] = reminder
	return nil
}

func (t *memTx) LockDebtReminder(_ context.Context, id string) (*domain.DebtReminder, error) {
	reminder, ok := t.st.reminders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reminder, nil
}

func (t *memTx) UpdateDebtReminder(_ context.Context, reminder domain.DebtReminder) error {
	if _, ok := t.st.reminders[reminder.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.reminders[reminder.ID] = reminder
	return nil
}
