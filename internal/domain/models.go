package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	RoleAdmin          = "admin"
	RoleManager        = "manager"
	RoleWarehouseStaff = "warehouse_staff"
)

const (
	CustomerIndividual = "individual"
	CustomerCompany    = "company"
	CustomerGovernment = "government"
	CustomerNGO        = "ngo"

	CustomerActive      = "active"
	CustomerInactive    = "inactive"
	CustomerBlacklisted = "blacklisted"
)

const (
	SaleMethodCash   = "cash"
	SaleMethodZaad   = "zaad"
	SaleMethodEdahab = "edahab"
	SaleMethodCredit = "credit"

	SalePaid    = "paid"
	SalePending = "pending"
	SalePartial = "partial"
)

const (
	DebtPending       = "pending"
	DebtOverdue       = "overdue"
	DebtPartiallyPaid = "partially_paid"
	DebtPaid          = "paid"
	DebtCancelled     = "cancelled"

	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const (
	PaymentCash         = "cash"
	PaymentBankTransfer = "bank_transfer"
	PaymentCheck        = "check"
	PaymentCreditCard   = "credit_card"
	PaymentZaad         = "zaad"
	PaymentEdahab       = "edahab"
	PaymentOther        = "other"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const (
	ReminderEmail  = "email"
	ReminderSMS    = "sms"
	ReminderPhone  = "phone"
	ReminderLetter = "letter"

	ReminderScheduled = "scheduled"
	ReminderSent      = "sent"
	ReminderFailed    = "failed"
	ReminderCancelled = "cancelled"
)

type Customer struct {
	ID                 string
	Name               string
	CustomerType       string
	Phone              string
	Email              string
	Address            string
	CreditLimit        decimal.Decimal
	OutstandingBalance decimal.Decimal
	AllowDebt          bool
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CustomerCreateRequest struct {
	Name         string          `json:"name"`
	CustomerType string          `json:"customer_type"`
	Phone        string          `json:"phone"`
	Email        string          `json:"email"`
	Address      string          `json:"address"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	AllowDebt    bool            `json:"allow_debt"`
}

type CustomerUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	CustomerType *string          `json:"customer_type,omitempty"`
	Phone        *string          `json:"phone,omitempty"`
	Email        *string          `json:"email,omitempty"`
	Address      *string          `json:"address,omitempty"`
	CreditLimit  *decimal.Decimal `json:"credit_limit,omitempty"`
	AllowDebt    *bool            `json:"allow_debt,omitempty"`
	Status       *string          `json:"status,omitempty"`
}

type CustomerFilter struct {
	Status string
	Search string
}

type Material struct {
	ID              string
	SKU             string
	Name            string
	Category        string
	Unit            string
	QuantityInStock decimal.Decimal
	PricePerUnit    decimal.Decimal
	CreatedAt       time.Time
}

type MaterialCreateRequest struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Unit            string          `json:"unit"`
	QuantityInStock decimal.Decimal `json:"quantity_in_stock"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
}

type Sale struct {
	ID            string
	InvoiceNumber string
	CustomerID    string
	SaleDate      time.Time
	PaymentMethod string
	Items         []SaleItem
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	TotalAmount   decimal.Decimal
	PaymentStatus string
	DueDate       *time.Time
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SaleItem struct {
	ID         string
	SaleID     string
	MaterialID string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

type SaleItemInput struct {
	MaterialID string           `json:"material_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    string          `json:"customer_id"`
	PaymentMethod string          `json:"payment_method"`
	Items         []SaleItemInput `json:"items"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	DueDate       string          `json:"due_date,omitempty"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	Notes         string          `json:"notes,omitempty"`
}

type SaleUpdateRequest struct {
	Tax      *decimal.Decimal `json:"tax,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

type SaleFilter struct {
	CustomerID    string
	PaymentMethod string
}

type CreditSaleRequest struct {
	CustomerID   string          `json:"customer_id"`
	Items        []SaleItemInput `json:"items"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	DueDate      string          `json:"due_date"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Priority     string          `json:"priority,omitempty"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type Debt struct {
	ID              string
	CustomerID      string
	SaleID          string
	TotalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	InterestRate    decimal.Decimal
	DueDate         time.Time
	Status          string
	Priority        string
	PaymentTerms    string
	Notes           string
	LastPaymentDate *time.Time
	IsDeleted       bool
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type DebtCreateRequest struct {
	CustomerID   string          `json:"customer_id"`
	SaleID       string          `json:"sale_id,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	DueDate      string          `json:"due_date"`
	Priority     string          `json:"priority,omitempty"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type DebtUpdateRequest struct {
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	PaidAmount   *decimal.Decimal `json:"paid_amount,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
	DueDate      *string          `json:"due_date,omitempty"`
	Priority     *string          `json:"priority,omitempty"`
	PaymentTerms *string          `json:"payment_terms,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Status       *string          `json:"status,omitempty"`
}

type DebtFilter struct {
	CustomerID string
	Status     string
	Priority   string
	SaleLinked bool
}

type DebtPayment struct {
	ID              string
	DebtID          string
	CustomerID      string
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentDate     time.Time
	ReferenceNumber string
	ReceiptNumber   string
	Status          string
	Notes           string
	ReceivedBy      string
	CreatedAt       time.Time
}

type PaymentCreateRequest struct {
	DebtID          string          `json:"debt_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentDate     string          `json:"payment_date,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	ReceiptNumber   string          `json:"receipt_number,omitempty"`
	Status          string          `json:"status,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

type PaymentStatusRequest struct {
	Status string `json:"status"`
}

type MarkPaidRequest struct {
	PaymentMethod string `json:"payment_method,omitempty"`
}

type PaymentFilter struct {
	DebtID     string
	CustomerID string
	Status     string
	From       time.Time
	To         time.Time
}

type DebtReminder struct {
	ID            string
	DebtID        string
	CustomerID    string
	ReminderType  string
	ScheduledDate time.Time
	SentDate      *time.Time
	Status        string
	Message       string
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
}

type ReminderCreateRequest struct {
	DebtID        string    `json:"debt_id"`
	ReminderType  string    `json:"reminder_type"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Message       string    `json:"message"`
	Notes         string    `json:"notes,omitempty"`
}

type ReminderFilter struct {
	DebtID      string
	Status      string
	ScheduledBy *time.Time
}

type CreditValidationRequest struct {
	CustomerID   string          `json:"customer_id"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
