package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return translate(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, id, false)
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	where, args := []string{"true"}, []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where = append(where, fmt.Sprintf("(lower(name) LIKE $%d OR lower(phone) LIKE $%d OR lower(email) LIKE $%d)", len(args), len(args), len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY name ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (s *Store) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	material, err := scanMaterial(s.db.QueryRowContext(ctx, `
		SELECT `+materialColumns+` FROM materials WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &material, nil
}

func (s *Store) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.Material, 0, 64)
	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, material)
	}
	return materials, rows.Err()
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where, args := []string{"true"}, []any{}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.PaymentMethod != "" {
		args = append(args, filter.PaymentMethod)
		where = append(where, fmt.Sprintf("payment_method = $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range sales {
		items, err := loadSaleItems(ctx, s.db, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	debt, err := scanDebt(s.db.QueryRowContext(ctx, `
		SELECT `+debtColumns+` FROM debts WHERE id = $1 AND NOT is_deleted
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &debt, nil
}

func (s *Store) ListDebts(ctx context.Context, filter domain.DebtFilter) ([]domain.Debt, error) {
	where, args := []string{"NOT is_deleted"}, []any{}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.SaleLinked {
		where = append(where, "sale_id IS NOT NULL")
	}

	return queryDebts(ctx, s.db, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
	`, args...)
}

func (s *Store) GetDebtPayment(ctx context.Context, id string) (*domain.DebtPayment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM debt_payments WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (s *Store) ListDebtPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.DebtPayment, error) {
	where, args := []string{"true"}, []any{}
	if filter.DebtID != "" {
		args = append(args, filter.DebtID)
		where = append(where, fmt.Sprintf("debt_id = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("payment_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("payment_date < $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM debt_payments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.DebtPayment, 0, 32)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *Store) GetDebtReminder(ctx context.Context, id string) (*domain.DebtReminder, error) {
	reminder, err := scanReminder(s.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+` FROM debt_reminders WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &reminder, nil
}

func (s *Store) ListDebtReminders(ctx context.Context, filter domain.ReminderFilter) ([]domain.DebtReminder, error) {
	where, args := []string{"true"}, []any{}
	if filter.DebtID != "" {
		args = append(args, filter.DebtID)
		where = append(where, fmt.Sprintf("debt_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ScheduledBy != nil {
		args = append(args, *filter.ScheduledBy)
		where = append(where, fmt.Sprintf("scheduled_date <= $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM debt_reminders
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY scheduled_date ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := make([]domain.DebtReminder, 0, 16)
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.Invalid("username", "username and password are required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func translate(err error) error {
	switch {
	case isSerializationFailure(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return domain.DateOf(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
