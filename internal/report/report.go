package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Summarize aggregates non-deleted debts. Overdue is judged against today
// rather than the stored status, which may lag until the next refresh.
func Summarize(debts []domain.Debt, today time.Time) domain.DebtSummary {
	var (
		total, paid, overdueAmount decimal.Decimal
		count, overdueCount        int
	)
	for _, debt := range debts {
		if debt.IsDeleted {
			continue
		}
		count++
		total = total.Add(debt.TotalAmount)
		paid = paid.Add(debt.PaidAmount)
		if debt.IsOverdue(today) {
			overdueCount++
			overdueAmount = overdueAmount.Add(debt.RemainingAmount())
		}
	}

	return domain.DebtSummary{
		TotalDebts:      count,
		TotalAmount:     domain.NewMoney(total),
		PaidAmount:      domain.NewMoney(paid),
		RemainingAmount: domain.NewMoney(total.Sub(paid)),
		OverdueCount:    overdueCount,
		OverdueAmount:   domain.NewMoney(overdueAmount),
		CollectionRate:  domain.NewMoney(percentage(paid, total)),
	}
}

// CustomerSummaries lists customers owning at least one non-deleted debt,
// ordered by name.
func CustomerSummaries(customers []domain.Customer, debts []domain.Debt, today time.Time) []domain.CustomerDebtSummary {
	byCustomer := make(map[string][]domain.Debt, len(customers))
	for _, debt := range debts {
		if debt.IsDeleted {
			continue
		}
		byCustomer[debt.CustomerID] = append(byCustomer[debt.CustomerID], debt)
	}

	result := make([]domain.CustomerDebtSummary, 0, len(byCustomer))
	for _, customer := range customers {
		owned, ok := byCustomer[customer.ID]
		if !ok {
			continue
		}
		totals := Summarize(owned, today)
		result = append(result, domain.CustomerDebtSummary{
			ID:                 customer.ID,
			Name:               customer.Name,
			Phone:              customer.Phone,
			Email:              customer.Email,
			CustomerType:       customer.CustomerType,
			CreditLimit:        domain.NewMoney(customer.CreditLimit),
			OutstandingBalance: domain.NewMoney(customer.OutstandingBalance),
			Status:             customer.Status,
			DebtSummary: domain.CustomerDebtTotals{
				TotalDebts:      totals.TotalDebts,
				TotalAmount:     totals.TotalAmount,
				PaidAmount:      totals.PaidAmount,
				RemainingAmount: totals.RemainingAmount,
				OverdueCount:    totals.OverdueCount,
				OverdueAmount:   totals.OverdueAmount,
			},
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// DebtMaterials breaks a sale-linked debt down by line item, scaling each
// line's value by the share of the debt still unpaid.
func DebtMaterials(debt domain.Debt, sale domain.Sale, materials map[string]domain.Material) domain.DebtMaterialsResponse {
	ratio := remainingRatio(debt)
	lines := make([]domain.DebtMaterialLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		material := materials[item.MaterialID]
		value := item.Quantity.Mul(item.UnitPrice)
		lines = append(lines, domain.DebtMaterialLine{
			MaterialID:     item.MaterialID,
			MaterialName:   material.Name,
			Category:       material.Category,
			Quantity:       domain.NewMoney(item.Quantity),
			Unit:           material.Unit,
			PricePerUnit:   domain.NewMoney(item.UnitPrice),
			TotalValue:     domain.NewMoney(value),
			RemainingValue: domain.NewMoney(value.Mul(ratio)),
		})
	}

	return domain.DebtMaterialsResponse{
		SaleID:         sale.ID,
		SaleDate:       sale.SaleDate,
		MaterialsCount: len(lines),
		Materials:      lines,
	}
}

type materialAccumulator struct {
	analysis    domain.MaterialAnalysis
	quantity    decimal.Decimal
	value       decimal.Decimal
	outstanding decimal.Decimal
	overdue     decimal.Decimal
	customers   map[string]struct{}
}

// MaterialsAnalysis attributes outstanding credit to the materials sold on
// it. Debts without a sale in sales are skipped.
func MaterialsAnalysis(
	debts []domain.Debt,
	sales map[string]domain.Sale,
	materials map[string]domain.Material,
	today time.Time,
) domain.MaterialsAnalysisResponse {
	accumulators := make(map[string]*materialAccumulator)
	for _, debt := range debts {
		if debt.IsDeleted || debt.SaleID == "" {
			continue
		}
		sale, ok := sales[debt.SaleID]
		if !ok {
			continue
		}

		ratio := remainingRatio(debt)
		overdue := debt.IsOverdue(today)
		for _, item := range sale.Items {
			acc, ok := accumulators[item.MaterialID]
			if !ok {
				material := materials[item.MaterialID]
				acc = &materialAccumulator{
					analysis: domain.MaterialAnalysis{
						MaterialID:   item.MaterialID,
						MaterialName: material.Name,
						MaterialSKU:  material.SKU,
					},
					customers: make(map[string]struct{}),
				}
				accumulators[item.MaterialID] = acc
			}

			value := item.Quantity.Mul(item.UnitPrice)
			outstanding := value.Mul(ratio)
			acc.analysis.TotalDebts++
			acc.quantity = acc.quantity.Add(item.Quantity)
			acc.value = acc.value.Add(value)
			acc.outstanding = acc.outstanding.Add(outstanding)
			acc.customers[debt.CustomerID] = struct{}{}
			if overdue {
				acc.overdue = acc.overdue.Add(outstanding)
			}
		}
	}

	type ranked struct {
		analysis    domain.MaterialAnalysis
		outstanding decimal.Decimal
	}
	rows := make([]ranked, 0, len(accumulators))
	var totalOutstanding, totalOverdue decimal.Decimal
	for _, acc := range accumulators {
		a := acc.analysis
		a.TotalQuantity = domain.NewMoney(acc.quantity)
		a.TotalValue = domain.NewMoney(acc.value)
		a.OutstandingValue = domain.NewMoney(acc.outstanding)
		a.OverdueValue = domain.NewMoney(acc.overdue)
		a.CustomersCount = len(acc.customers)
		a.AvgDebtPerUnit = domain.NewMoney(decimal.Zero)
		if acc.quantity.IsPositive() {
			a.AvgDebtPerUnit = domain.NewMoney(acc.outstanding.Div(acc.quantity))
		}
		totalOutstanding = totalOutstanding.Add(acc.outstanding)
		totalOverdue = totalOverdue.Add(acc.overdue)
		rows = append(rows, ranked{analysis: a, outstanding: acc.outstanding})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].outstanding.Equal(rows[j].outstanding) {
			return rows[i].analysis.MaterialID < rows[j].analysis.MaterialID
		}
		return rows[i].outstanding.GreaterThan(rows[j].outstanding)
	})

	result := make([]domain.MaterialAnalysis, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.analysis)
	}

	resp := domain.MaterialsAnalysisResponse{
		MaterialsAnalysis: result,
		Summary: domain.MaterialsAnalysisSummary{
			TotalMaterials:        len(result),
			TotalOutstandingValue: domain.NewMoney(totalOutstanding),
			TotalOverdueValue:     domain.NewMoney(totalOverdue),
		},
	}
	if len(result) > 0 {
		top := result[0]
		resp.Summary.MostValuableMaterial = &top
	}
	return resp
}

// DailyPayments totals completed payments dated on day.
func DailyPayments(payments []domain.DebtPayment, day time.Time) domain.DailyPaymentSummary {
	day = domain.DateOf(day)
	methods := make(map[string]domain.PaymentMethodTotal)
	amounts := make(map[string]decimal.Decimal)
	var (
		total decimal.Decimal
		count int
	)
	for _, payment := range payments {
		if payment.Status != domain.PaymentStatusCompleted || !domain.DateOf(payment.PaymentDate).Equal(day) {
			continue
		}
		count++
		total = total.Add(payment.Amount)
		amounts[payment.PaymentMethod] = amounts[payment.PaymentMethod].Add(payment.Amount)
		entry := methods[payment.PaymentMethod]
		entry.Count++
		methods[payment.PaymentMethod] = entry
	}
	for method, entry := range methods {
		entry.Amount = domain.NewMoney(amounts[method])
		methods[method] = entry
	}

	return domain.DailyPaymentSummary{
		Date:           day.Format(domain.DateLayout),
		TotalPayments:  count,
		TotalAmount:    domain.NewMoney(total),
		PaymentMethods: methods,
	}
}

// StatementInput gathers everything a customer statement renders.
type StatementInput struct {
	Customer  domain.Customer
	Debts     []domain.Debt
	Payments  []domain.DebtPayment
	Sales     map[string]domain.Sale
	Materials map[string]domain.Material
	Generated time.Time
}

func CustomerStatement(in StatementInput) domain.CustomerStatement {
	paymentsByDebt := make(map[string][]domain.StatementPayment, len(in.Debts))
	for _, payment := range in.Payments {
		paymentsByDebt[payment.DebtID] = append(paymentsByDebt[payment.DebtID], domain.StatementPayment{
			ID:            payment.ID,
			Amount:        domain.NewMoney(payment.Amount),
			PaymentMethod: payment.PaymentMethod,
			Date:          payment.PaymentDate.Format(domain.DateLayout),
			Notes:         payment.Notes,
		})
	}

	type materialTotals struct {
		sku      string
		quantity decimal.Decimal
		value    decimal.Decimal
	}
	byMaterial := make(map[string]*materialTotals)

	var total, paid, outstanding decimal.Decimal
	debts := make([]domain.StatementDebt, 0, len(in.Debts))
	for _, debt := range in.Debts {
		if debt.IsDeleted {
			continue
		}
		total = total.Add(debt.TotalAmount)
		paid = paid.Add(debt.PaidAmount)
		outstanding = outstanding.Add(debt.RemainingAmount())

		payments := paymentsByDebt[debt.ID]
		if payments == nil {
			payments = []domain.StatementPayment{}
		}
		debts = append(debts, domain.StatementDebt{
			ID:              debt.ID,
			CreatedDate:     debt.CreatedAt.Format(domain.DateLayout),
			DueDate:         debt.DueDate.Format(domain.DateLayout),
			TotalAmount:     domain.NewMoney(debt.TotalAmount),
			PaidAmount:      domain.NewMoney(debt.PaidAmount),
			RemainingAmount: domain.NewMoney(debt.RemainingAmount()),
			Status:          debt.Status,
			Notes:           debt.Notes,
			Payments:        payments,
		})

		sale, ok := in.Sales[debt.SaleID]
		if debt.SaleID == "" || !ok {
			continue
		}
		for _, item := range sale.Items {
			name := in.Materials[item.MaterialID].Name
			if name == "" {
				name = item.MaterialID
			}
			acc, ok := byMaterial[name]
			if !ok {
				acc = &materialTotals{sku: in.Materials[item.MaterialID].SKU}
				byMaterial[name] = acc
			}
			acc.quantity = acc.quantity.Add(item.Quantity)
			acc.value = acc.value.Add(item.Quantity.Mul(item.UnitPrice))
		}
	}

	materials := make([]domain.StatementMaterial, 0, len(byMaterial))
	for name, acc := range byMaterial {
		materials = append(materials, domain.StatementMaterial{
			Name:       name,
			SKU:        acc.sku,
			Quantity:   domain.NewMoney(acc.quantity),
			TotalValue: domain.NewMoney(acc.value),
		})
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].Name < materials[j].Name })

	email := in.Customer.Email
	if email == "" {
		email = "N/A"
	}

	return domain.CustomerStatement{
		ReportType:    "customer_debt_report",
		GeneratedDate: in.Generated.UTC().Format("2006-01-02 15:04:05"),
		Customer: domain.StatementCustomer{
			ID:                 in.Customer.ID,
			Name:               in.Customer.Name,
			Phone:              in.Customer.Phone,
			Email:              email,
			CustomerType:       in.Customer.CustomerType,
			CreditLimit:        domain.NewMoney(in.Customer.CreditLimit),
			OutstandingBalance: domain.NewMoney(in.Customer.OutstandingBalance),
		},
		Summary: domain.StatementSummary{
			TotalDebts:       len(debts),
			TotalAmount:      domain.NewMoney(total),
			TotalPaid:        domain.NewMoney(paid),
			TotalOutstanding: domain.NewMoney(outstanding),
		},
		Debts:     debts,
		Materials: materials,
	}
}

func remainingRatio(debt domain.Debt) decimal.Decimal {
	if !debt.TotalAmount.IsPositive() {
		return decimal.Zero
	}
	return debt.RemainingAmount().Div(debt.TotalAmount)
}

func percentage(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
