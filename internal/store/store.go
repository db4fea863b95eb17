package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrDuplicate         = errors.New("duplicate record")
)

// Repository is the read side plus the transaction entry point. Every
// mutation goes through WithinTx; the callback must only use tx.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error)
	GetMaterial(ctx context.Context, id string) (*domain.Material, error)
	ListMaterials(ctx context.Context) ([]domain.Material, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	GetDebt(ctx context.Context, id string) (*domain.Debt, error)
	ListDebts(ctx context.Context, filter domain.DebtFilter) ([]domain.Debt, error)
	GetDebtPayment(ctx context.Context, id string) (*domain.DebtPayment, error)
	ListDebtPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.DebtPayment, error)
	GetDebtReminder(ctx context.Context, id string) (*domain.DebtReminder, error)
	ListDebtReminders(ctx context.Context, filter domain.ReminderFilter) ([]domain.DebtReminder, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is a unit of work. Lock* methods take row locks held until commit;
// callers lock in the order payment, debt, sale, customer.
type Tx interface {
	InsertCustomer(ctx context.Context, customer domain.Customer) error
	LockCustomer(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) error

	InsertMaterial(ctx context.Context, material domain.Material) error
	LockMaterials(ctx context.Context, ids []string) (map[string]domain.Material, error)
	SetMaterialStock(ctx context.Context, id string, qty decimal.Decimal) error

	InsertSale(ctx context.Context, sale domain.Sale) error
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error

	InsertDebt(ctx context.Context, debt domain.Debt) error
	LockDebt(ctx context.Context, id string) (*domain.Debt, error)
	LockDebtBySale(ctx context.Context, saleID string) (*domain.Debt, error)
	LockCustomerDebts(ctx context.Context, customerID string) ([]domain.Debt, error)
	UpdateDebt(ctx context.Context, debt domain.Debt) error

	InsertDebtPayment(ctx context.Context, payment domain.DebtPayment) error
	LockDebtPayment(ctx context.Context, id string) (*domain.DebtPayment, error)
	UpdateDebtPayment(ctx context.Context, payment domain.DebtPayment) error
	DeleteDebtPayment(ctx context.Context, id string) error
	// CompletedPaymentsTotal sums the completed payments recorded against a debt.
	CompletedPaymentsTotal(ctx context.Context, debtID string) (decimal.Decimal, error)

	InsertDebtReminder(ctx context.Context, reminder domain.DebtReminder) error
	LockDebtReminder(ctx context.Context, id string) (*domain.DebtReminder, error)
	UpdateDebtReminder(ctx context.Context, reminder domain.DebtReminder) error
}
