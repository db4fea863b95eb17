package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

const (
	customerColumns = `id, name, customer_type, phone, email, address, credit_limit, outstanding_balance, allow_debt, status, created_at, updated_at`
	materialColumns = `id, sku, name, category, unit, quantity_in_stock, price_per_unit, created_at`
	saleColumns     = `id, invoice_number, customer_id, sale_date, payment_method, subtotal, tax, discount, total_amount, payment_status, due_date, notes, created_by, created_at, updated_at`
	debtColumns     = `id, customer_id, sale_id, total_amount, paid_amount, interest_rate, due_date, status, priority, payment_terms, notes, last_payment_date, is_deleted, created_by, created_at, updated_at`
	paymentColumns  = `id, debt_id, customer_id, amount, payment_method, payment_date, reference_number, receipt_number, status, notes, received_by, created_at`
	reminderColumns = `id, debt_id, customer_id, reminder_type, scheduled_date, sent_date, status, message, notes, created_by, created_at`
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) InsertCustomer(ctx context.Context, c domain.Customer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, c.ID, c.Name, c.CustomerType, c.Phone, c.Email, c.Address, c.CreditLimit, c.OutstandingBalance, c.AllowDebt, c.Status, c.CreatedAt, c.UpdatedAt)
	return insertErr(err)
}

func (t *pgTx) LockCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, customer_type = $3, phone = $4, email = $5, address = $6,
			credit_limit = $7, outstanding_balance = $8, allow_debt = $9, status = $10, updated_at = $11
		WHERE id = $1
	`, c.ID, c.Name, c.CustomerType, c.Phone, c.Email, c.Address, c.CreditLimit, c.OutstandingBalance, c.AllowDebt, c.Status, c.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertMaterial(ctx context.Context, m domain.Material) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO materials (`+materialColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.SKU, m.Name, m.Category, m.Unit, m.QuantityInStock, m.PricePerUnit, m.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) LockMaterials(ctx context.Context, ids []string) (map[string]domain.Material, error) {
	result := make(map[string]domain.Material, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	// Stable order keeps concurrent sales from deadlocking on stock rows.
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		result[material.ID] = material
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, store.ErrNotFound
		}
	}
	return result, nil
}

func (t *pgTx) SetMaterialStock(ctx context.Context, id string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return store.ErrInsufficientStock
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE materials SET quantity_in_stock = $2 WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertSale(ctx context.Context, s domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, s.ID, s.InvoiceNumber, s.CustomerID, s.SaleDate, s.PaymentMethod, s.Subtotal, s.Tax, s.Discount,
		s.TotalAmount, s.PaymentStatus, nullDate(s.DueDate), s.Notes, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return insertErr(err)
	}

	for _, item := range s.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, material_id, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, s.ID, item.MaterialID, item.Quantity, item.UnitPrice, item.TotalPrice); err != nil {
			return insertErr(err)
		}
	}
	return nil
}

func (t *pgTx) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, t.tx, id, true)
}

// UpdateSale rewrites the header only; line items are immutable once sold.
func (t *pgTx) UpdateSale(ctx context.Context, s domain.Sale) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET subtotal = $2, tax = $3, discount = $4, total_amount = $5, payment_status = $6,
			due_date = $7, notes = $8, updated_at = $9
		WHERE id = $1
	`, s.ID, s.Subtotal, s.Tax, s.Discount, s.TotalAmount, s.PaymentStatus, nullDate(s.DueDate), s.Notes, s.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertDebt(ctx context.Context, d domain.Debt) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO debts (`+debtColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, d.ID, d.CustomerID, nullIfEmpty(d.SaleID), d.TotalAmount, d.PaidAmount, d.InterestRate, domain.DateOf(d.DueDate),
		d.Status, d.Priority, d.PaymentTerms, d.Notes, nullDate(d.LastPaymentDate), d.IsDeleted, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return insertErr(err)
}

func (t *pgTx) LockDebt(ctx context.Context, id string) (*domain.Debt, error) {
	debt, err := scanDebt(t.tx.QueryRowContext(ctx, `
		SELECT `+debtColumns+` FROM debts WHERE id = $1 AND NOT is_deleted FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &debt, nil
}

func (t *pgTx) LockDebtBySale(ctx context.Context, saleID string) (*domain.Debt, error) {
	debt, err := scanDebt(t.tx.QueryRowContext(ctx, `
		SELECT `+debtColumns+` FROM debts WHERE sale_id = $1 FOR UPDATE
	`, saleID))
	if err != nil {
		return nil, notFound(err)
	}
	return &debt, nil
}

func (t *pgTx) LockCustomerDebts(ctx context.Context, customerID string) ([]domain.Debt, error) {
	return queryDebts(ctx, t.tx, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE customer_id = $1 AND NOT is_deleted
		ORDER BY id
		FOR UPDATE
	`, customerID)
}

func (t *pgTx) UpdateDebt(ctx context.Context, d domain.Debt) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE debts
		SET total_amount = $2, paid_amount = $3, interest_rate = $4, due_date = $5, status = $6,
			priority = $7, payment_terms = $8, notes = $9, last_payment_date = $10, is_deleted = $11, updated_at = $12
		WHERE id = $1
	`, d.ID, d.TotalAmount, d.PaidAmount, d.InterestRate, domain.DateOf(d.DueDate), d.Status,
		d.Priority, d.PaymentTerms, d.Notes, nullDate(d.LastPaymentDate), d.IsDeleted, d.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertDebtPayment(ctx context.Context, p domain.DebtPayment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO debt_payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.DebtID, p.CustomerID, p.Amount, p.PaymentMethod, domain.DateOf(p.PaymentDate),
		p.ReferenceNumber, p.ReceiptNumber, p.Status, p.Notes, p.ReceivedBy, p.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) LockDebtPayment(ctx context.Context, id string) (*domain.DebtPayment, error) {
	payment, err := scanPayment(t.tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM debt_payments WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (t *pgTx) UpdateDebtPayment(ctx context.Context, p domain.DebtPayment) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE debt_payments
		SET amount = $2, payment_method = $3, payment_date = $4, reference_number = $5,
			receipt_number = $6, status = $7, notes = $8
		WHERE id = $1
	`, p.ID, p.Amount, p.PaymentMethod, domain.DateOf(p.PaymentDate), p.ReferenceNumber, p.ReceiptNumber, p.Status, p.Notes)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) DeleteDebtPayment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM debt_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) CompletedPaymentsTotal(ctx context.Context, debtID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM debt_payments WHERE debt_id = $1 AND status = $2
	`, debtID, domain.PaymentStatusCompleted).Scan(&total)
	return total, err
}

func (t *pgTx) InsertDebtReminder(ctx context.Context, r domain.DebtReminder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO debt_reminders (`+reminderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, r.ID, r.DebtID, r.CustomerID, r.ReminderType, r.ScheduledDate, nullTime(r.SentDate),
		r.Status, r.Message, r.Notes, r.CreatedBy, r.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) LockDebtReminder(ctx context.Context, id string) (*domain.DebtReminder, error) {
	reminder, err := scanReminder(t.tx.QueryRowContext(ctx, `
		SELECT `+reminderColumns+` FROM debt_reminders WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &reminder, nil
}

func (t *pgTx) UpdateDebtReminder(ctx context.Context, r domain.DebtReminder) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE debt_reminders
		SET reminder_type = $2, scheduled_date = $3, sent_date = $4, status = $5, message = $6, notes = $7
		WHERE id = $1
	`, r.ID, r.ReminderType, r.ScheduledDate, nullTime(r.SentDate), r.Status, r.Message, r.Notes)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func insertErr(err error) error {
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func getCustomer(ctx context.Context, q queryer, id string, lock bool) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	customer, err := scanCustomer(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func getSale(ctx context.Context, q queryer, id string, lock bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := loadSaleItems(ctx, q, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func loadSaleItems(ctx context.Context, q queryer, saleID string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, material_id, quantity, unit_price, total_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 4)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.MaterialID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func queryDebts(ctx context.Context, q queryer, query string, args ...any) ([]domain.Debt, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, 16)
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	return debts, rows.Err()
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.CustomerType, &c.Phone, &c.Email, &c.Address,
		&c.CreditLimit, &c.OutstandingBalance, &c.AllowDebt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func scanMaterial(row rowScanner) (domain.Material, error) {
	var m domain.Material
	err := row.Scan(&m.ID, &m.SKU, &m.Name, &m.Category, &m.Unit, &m.QuantityInStock, &m.PricePerUnit, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		s       domain.Sale
		dueDate sql.NullTime
	)
	err := row.Scan(&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.SaleDate, &s.PaymentMethod, &s.Subtotal, &s.Tax,
		&s.Discount, &s.TotalAmount, &s.PaymentStatus, &dueDate, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if dueDate.Valid {
		due := domain.DateOf(dueDate.Time)
		s.DueDate = &due
	}
	s.SaleDate = s.SaleDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func scanDebt(row rowScanner) (domain.Debt, error) {
	var (
		d           domain.Debt
		saleID      sql.NullString
		lastPayment sql.NullTime
	)
	err := row.Scan(&d.ID, &d.CustomerID, &saleID, &d.TotalAmount, &d.PaidAmount, &d.InterestRate, &d.DueDate,
		&d.Status, &d.Priority, &d.PaymentTerms, &d.Notes, &lastPayment, &d.IsDeleted, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.SaleID = saleID.String
	if lastPayment.Valid {
		paidOn := domain.DateOf(lastPayment.Time)
		d.LastPaymentDate = &paidOn
	}
	d.DueDate = domain.DateOf(d.DueDate)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func scanPayment(row rowScanner) (domain.DebtPayment, error) {
	var p domain.DebtPayment
	err := row.Scan(&p.ID, &p.DebtID, &p.CustomerID, &p.Amount, &p.PaymentMethod, &p.PaymentDate,
		&p.ReferenceNumber, &p.ReceiptNumber, &p.Status, &p.Notes, &p.ReceivedBy, &p.CreatedAt)
	p.PaymentDate = domain.DateOf(p.PaymentDate)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func scanReminder(row rowScanner) (domain.DebtReminder, error) {
	var (
		r    domain.DebtReminder
		sent sql.NullTime
	)
	err := row.Scan(&r.ID, &r.DebtID, &r.CustomerID, &r.ReminderType, &r.ScheduledDate, &sent,
		&r.Status, &r.Message, &r.Notes, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	if sent.Valid {
		sentAt := sent.Time.UTC()
		r.SentDate = &sentAt
	}
	r.ScheduledDate = r.ScheduledDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
