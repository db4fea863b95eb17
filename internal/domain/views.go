package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount rendered with two fractional digits.
type Money string

func NewMoney(d decimal.Decimal) Money {
	return Money(d.StringFixed(2))
}

func (m Money) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(m))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type CustomerView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	CustomerType       string    `json:"customer_type"`
	Phone              string    `json:"phone"`
	Email              string    `json:"email,omitempty"`
	Address            string    `json:"address,omitempty"`
	CreditLimit        Money     `json:"credit_limit"`
	OutstandingBalance Money     `json:"outstanding_balance"`
	AvailableCredit    Money     `json:"available_credit"`
	AllowDebt          bool      `json:"allow_debt"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewCustomerView(c Customer) CustomerView {
	return CustomerView{
		ID:                 c.ID,
		Name:               c.Name,
		CustomerType:       c.CustomerType,
		Phone:              c.Phone,
		Email:              c.Email,
		Address:            c.Address,
		CreditLimit:        NewMoney(c.CreditLimit),
		OutstandingBalance: NewMoney(c.OutstandingBalance),
		AvailableCredit:    NewMoney(c.CreditLimit.Sub(c.OutstandingBalance)),
		AllowDebt:          c.AllowDebt,
		Status:             c.Status,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

type MaterialView struct {
	ID              string    `json:"id"`
	SKU             string    `json:"sku"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Unit            string    `json:"unit"`
	QuantityInStock Money     `json:"quantity_in_stock"`
	PricePerUnit    Money     `json:"price_per_unit"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewMaterialView(m Material) MaterialView {
	return MaterialView{
		ID:              m.ID,
		SKU:             m.SKU,
		Name:            m.Name,
		Category:        m.Category,
		Unit:            m.Unit,
		QuantityInStock: NewMoney(m.QuantityInStock),
		PricePerUnit:    NewMoney(m.PricePerUnit),
		CreatedAt:       m.CreatedAt,
	}
}

type SaleItemView struct {
	ID         string `json:"id"`
	MaterialID string `json:"material_id"`
	Quantity   Money  `json:"quantity"`
	UnitPrice  Money  `json:"unit_price"`
	TotalPrice Money  `json:"total_price"`
}

type SaleView struct {
	ID            string         `json:"id"`
	InvoiceNumber string         `json:"invoice_number"`
	CustomerID    string         `json:"customer_id"`
	SaleDate      time.Time      `json:"sale_date"`
	PaymentMethod string         `json:"payment_method"`
	Items         []SaleItemView `json:"items"`
	Subtotal      Money          `json:"subtotal"`
	Tax           Money          `json:"tax"`
	Discount      Money          `json:"discount"`
	TotalAmount   Money          `json:"total_amount"`
	PaymentStatus string         `json:"payment_status"`
	DueDate       *string        `json:"due_date"`
	Notes         string         `json:"notes,omitempty"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

func NewSaleView(s Sale) SaleView {
	items := make([]SaleItemView, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, SaleItemView{
			ID:         item.ID,
			MaterialID: item.MaterialID,
			Quantity:   NewMoney(item.Quantity),
			UnitPrice:  NewMoney(item.UnitPrice),
			TotalPrice: NewMoney(item.TotalPrice),
		})
	}
	view := SaleView{
		ID:            s.ID,
		InvoiceNumber: s.InvoiceNumber,
		CustomerID:    s.CustomerID,
		SaleDate:      s.SaleDate,
		PaymentMethod: s.PaymentMethod,
		Items:         items,
		Subtotal:      NewMoney(s.Subtotal),
		Tax:           NewMoney(s.Tax),
		Discount:      NewMoney(s.Discount),
		TotalAmount:   NewMoney(s.TotalAmount),
		PaymentStatus: s.PaymentStatus,
		Notes:         s.Notes,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     s.CreatedAt,
	}
	if s.DueDate != nil {
		due := s.DueDate.Format(DateLayout)
		view.DueDate = &due
	}
	return view
}

type DebtView struct {
	ID                string    `json:"id"`
	CustomerID        string    `json:"customer_id"`
	CustomerName      string    `json:"customer_name,omitempty"`
	SaleID            string    `json:"sale_id,omitempty"`
	TotalAmount       Money     `json:"total_amount"`
	PaidAmount        Money     `json:"paid_amount"`
	RemainingAmount   Money     `json:"remaining_amount"`
	InterestRate      Money     `json:"interest_rate"`
	InterestAmount    Money     `json:"interest_amount"`
	DueDate           string    `json:"due_date"`
	Status            string    `json:"status"`
	Priority          string    `json:"priority"`
	PaymentTerms      string    `json:"payment_terms,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	LastPaymentDate   *string   `json:"last_payment_date"`
	IsOverdue         bool      `json:"is_overdue"`
	DaysOverdue       int       `json:"days_overdue"`
	PaymentPercentage Money     `json:"payment_percentage"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func NewDebtView(d Debt, customerName string, today time.Time) DebtView {
	view := DebtView{
		ID:                d.ID,
		CustomerID:        d.CustomerID,
		CustomerName:      customerName,
		SaleID:            d.SaleID,
		TotalAmount:       NewMoney(d.TotalAmount),
		PaidAmount:        NewMoney(d.PaidAmount),
		RemainingAmount:   NewMoney(d.RemainingAmount()),
		InterestRate:      NewMoney(d.InterestRate),
		InterestAmount:    NewMoney(d.Interest(today)),
		DueDate:           d.DueDate.Format(DateLayout),
		Status:            d.Status,
		Priority:          d.Priority,
		PaymentTerms:      d.PaymentTerms,
		Notes:             d.Notes,
		IsOverdue:         d.IsOverdue(today),
		DaysOverdue:       d.DaysOverdue(today),
		PaymentPercentage: NewMoney(d.PaymentPercentage()),
		CreatedBy:         d.CreatedBy,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.LastPaymentDate != nil {
		last := d.LastPaymentDate.Format(DateLayout)
		view.LastPaymentDate = &last
	}
	return view
}

type PaymentView struct {
	ID              string    `json:"id"`
	DebtID          string    `json:"debt_id"`
	CustomerID      string    `json:"customer_id"`
	Amount          Money     `json:"amount"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentDate     string    `json:"payment_date"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	ReceiptNumber   string    `json:"receipt_number,omitempty"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	ReceivedBy      string    `json:"received_by"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewPaymentView(p DebtPayment) PaymentView {
	return PaymentView{
		ID:              p.ID,
		DebtID:          p.DebtID,
		CustomerID:      p.CustomerID,
		Amount:          NewMoney(p.Amount),
		PaymentMethod:   p.PaymentMethod,
		PaymentDate:     p.PaymentDate.Format(DateLayout),
		ReferenceNumber: p.ReferenceNumber,
		ReceiptNumber:   p.ReceiptNumber,
		Status:          p.Status,
		Notes:           p.Notes,
		ReceivedBy:      p.ReceivedBy,
		CreatedAt:       p.CreatedAt,
	}
}

type ReminderView struct {
	ID            string     `json:"id"`
	DebtID        string     `json:"debt_id"`
	CustomerID    string     `json:"customer_id"`
	ReminderType  string     `json:"reminder_type"`
	ScheduledDate time.Time  `json:"scheduled_date"`
	SentDate      *time.Time `json:"sent_date"`
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewReminderView(r DebtReminder) ReminderView {
	return ReminderView{
		ID:            r.ID,
		DebtID:        r.DebtID,
		CustomerID:    r.CustomerID,
		ReminderType:  r.ReminderType,
		ScheduledDate: r.ScheduledDate,
		SentDate:      r.SentDate,
		Status:        r.Status,
		Message:       r.Message,
		Notes:         r.Notes,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
	}
}

type CreditSaleResponse struct {
	Message string   `json:"message"`
	SaleID  string   `json:"sale_id"`
	DebtID  string   `json:"debt_id"`
	Sale    SaleView `json:"sale"`
	Debt    DebtView `json:"debt"`
}

type CreditCheck struct {
	CustomerID         string `json:"customer_id"`
	CustomerName       string `json:"customer_name"`
	CreditLimit        Money  `json:"credit_limit"`
	OutstandingBalance Money  `json:"outstanding_balance"`
	AvailableCredit    Money  `json:"available_credit"`
	RequestedAmount    Money  `json:"requested_amount"`
	CanTakeCredit      bool   `json:"can_take_credit"`
	ApprovalRequired   bool   `json:"approval_required"`
	UnlimitedCredit    bool   `json:"unlimited_credit"`
	Reason             string `json:"reason,omitempty"`
	Shortfall          *Money `json:"shortfall,omitempty"`
}

type DebtSummary struct {
	TotalDebts      int   `json:"total_debts"`
	TotalAmount     Money `json:"total_amount"`
	PaidAmount      Money `json:"paid_amount"`
	RemainingAmount Money `json:"remaining_amount"`
	OverdueCount    int   `json:"overdue_count"`
	OverdueAmount   Money `json:"overdue_amount"`
	CollectionRate  Money `json:"collection_rate"`
}

type CustomerDebtTotals struct {
	TotalDebts      int   `json:"total_debts"`
	TotalAmount     Money `json:"total_amount"`
	PaidAmount      Money `json:"paid_amount"`
	RemainingAmount Money `json:"remaining_amount"`
	OverdueCount    int   `json:"overdue_count"`
	OverdueAmount   Money `json:"overdue_amount"`
}

type CustomerDebtSummary struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Phone              string             `json:"phone"`
	Email              string             `json:"email,omitempty"`
	CustomerType       string             `json:"customer_type"`
	CreditLimit        Money              `json:"credit_limit"`
	OutstandingBalance Money              `json:"outstanding_balance"`
	Status             string             `json:"status"`
	DebtSummary        CustomerDebtTotals `json:"debt_summary"`
}

type DebtMaterialLine struct {
	MaterialID     string `json:"material_id"`
	MaterialName   string `json:"material_name"`
	Category       string `json:"category"`
	Quantity       Money  `json:"quantity"`
	Unit           string `json:"unit"`
	PricePerUnit   Money  `json:"price_per_unit"`
	TotalValue     Money  `json:"total_value"`
	RemainingValue Money  `json:"remaining_value"`
}

type DebtMaterialsResponse struct {
	SaleID         string             `json:"sale_id"`
	SaleDate       time.Time          `json:"sale_date"`
	MaterialsCount int                `json:"materials_count"`
	Materials      []DebtMaterialLine `json:"materials"`
}

type MaterialAnalysis struct {
	MaterialID       string `json:"material_id"`
	MaterialName     string `json:"material_name"`
	MaterialSKU      string `json:"material_sku"`
	TotalDebts       int    `json:"total_debts"`
	TotalQuantity    Money  `json:"total_quantity"`
	TotalValue       Money  `json:"total_value"`
	OutstandingValue Money  `json:"outstanding_value"`
	CustomersCount   int    `json:"customers_count"`
	OverdueValue     Money  `json:"overdue_value"`
	AvgDebtPerUnit   Money  `json:"avg_debt_per_unit"`
}

type MaterialsAnalysisSummary struct {
	TotalMaterials        int               `json:"total_materials"`
	TotalOutstandingValue Money             `json:"total_outstanding_value"`
	TotalOverdueValue     Money             `json:"total_overdue_value"`
	MostValuableMaterial  *MaterialAnalysis `json:"most_valuable_material"`
}

type MaterialsAnalysisResponse struct {
	MaterialsAnalysis []MaterialAnalysis       `json:"materials_analysis"`
	Summary           MaterialsAnalysisSummary `json:"summary"`
}

type PaymentMethodTotal struct {
	Count  int   `json:"count"`
	Amount Money `json:"amount"`
}

type DailyPaymentSummary struct {
	Date           string                        `json:"date"`
	TotalPayments  int                           `json:"total_payments"`
	TotalAmount    Money                         `json:"total_amount"`
	PaymentMethods map[string]PaymentMethodTotal `json:"payment_methods"`
}

type StatementCustomer struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	CustomerType       string `json:"customer_type"`
	CreditLimit        Money  `json:"credit_limit"`
	OutstandingBalance Money  `json:"outstanding_balance"`
}

type StatementSummary struct {
	TotalDebts       int   `json:"total_debts"`
	TotalAmount      Money `json:"total_amount"`
	TotalPaid        Money `json:"total_paid"`
	TotalOutstanding Money `json:"total_outstanding"`
}

type StatementPayment struct {
	ID            string `json:"id"`
	Amount        Money  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Date          string `json:"date"`
	Notes         string `json:"notes"`
}

type StatementDebt struct {
	ID              string             `json:"id"`
	CreatedDate     string             `json:"created_date"`
	DueDate         string             `json:"due_date"`
	TotalAmount     Money              `json:"total_amount"`
	PaidAmount      Money              `json:"paid_amount"`
	RemainingAmount Money              `json:"remaining_amount"`
	Status          string             `json:"status"`
	Notes           string             `json:"notes"`
	Payments        []StatementPayment `json:"payments"`
}

type StatementMaterial struct {
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Quantity   Money  `json:"quantity"`
	TotalValue Money  `json:"total_value"`
}

type CustomerStatement struct {
	ReportType    string              `json:"report_type"`
	GeneratedDate string              `json:"generated_date"`
	Customer      StatementCustomer   `json:"customer"`
	Summary       StatementSummary    `json:"summary"`
	Debts         []StatementDebt     `json:"debts"`
	Materials     []StatementMaterial `json:"materials"`
}

type ReconcileResult struct {
	CustomerID string `json:"customer_id"`
	Recorded   Money  `json:"recorded"`
	Computed   Money  `json:"computed"`
	Drift      Money  `json:"drift"`
	Adjusted   bool   `json:"adjusted"`
}
