package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nurbuild/backend/internal/domain"
)

var today = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func debtFixture(id, customerID, saleID, total, paid string, dueOffsetDays int, status string) domain.Debt {
	return domain.Debt{
		ID:          id,
		CustomerID:  customerID,
		SaleID:      saleID,
		TotalAmount: dec(total),
		PaidAmount:  dec(paid),
		DueDate:     today.AddDate(0, 0, dueOffsetDays),
		Status:      status,
		CreatedAt:   today.AddDate(0, 0, -20),
	}
}

func TestSummarizeCountsOverdueByDueDate(t *testing.T) {
	debts := []domain.Debt{
		debtFixture("d1", "c1", "", "1000", "250", -3, domain.DebtPartiallyPaid),
		debtFixture("d2", "c1", "", "500", "0", 10, domain.DebtPending),
		debtFixture("d3", "c2", "", "300", "300", -30, domain.DebtPaid),
	}
	deleted := debtFixture("d4", "c2", "", "999", "0", -5, domain.DebtOverdue)
	deleted.IsDeleted = true
	debts = append(debts, deleted)

	summary := Summarize(debts, today)

	assert.Equal(t, 3, summary.TotalDebts)
	assert.Equal(t, domain.Money("1800.00"), summary.TotalAmount)
	assert.Equal(t, domain.Money("550.00"), summary.PaidAmount)
	assert.Equal(t, domain.Money("1250.00"), summary.RemainingAmount)
	assert.Equal(t, 1, summary.OverdueCount)
	assert.Equal(t, domain.Money("750.00"), summary.OverdueAmount)
	assert.Equal(t, domain.Money("30.56"), summary.CollectionRate)
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	summary := Summarize(nil, today)
	assert.Equal(t, 0, summary.TotalDebts)
	assert.Equal(t, domain.Money("0.00"), summary.CollectionRate)
}

func TestCustomerSummariesSkipsCustomersWithoutDebt(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c2", Name: "Zed Works", CreditLimit: dec("100")},
		{ID: "c1", Name: "Acme Build", CreditLimit: dec("5000"), OutstandingBalance: dec("750")},
		{ID: "c3", Name: "Nobody"},
	}
	debts := []domain.Debt{
		debtFixture("d1", "c1", "", "1000", "250", -3, domain.DebtPartiallyPaid),
		debtFixture("d2", "c2", "", "40", "0", 2, domain.DebtPending),
	}

	summaries := CustomerSummaries(customers, debts, today)

	require.Len(t, summaries, 2)
	assert.Equal(t, "Acme Build", summaries[0].Name)
	assert.Equal(t, domain.Money("750.00"), summaries[0].DebtSummary.RemainingAmount)
	assert.Equal(t, 1, summaries[0].DebtSummary.OverdueCount)
	assert.Equal(t, "Zed Works", summaries[1].Name)
}

func TestDebtMaterialsScalesByRemainingShare(t *testing.T) {
	debt := debtFixture("d1", "c1", "s1", "200", "50", 5, domain.DebtPartiallyPaid)
	sale := domain.Sale{
		ID:       "s1",
		SaleDate: today,
		Items: []domain.SaleItem{
			{MaterialID: "m1", Quantity: dec("10"), UnitPrice: dec("8.50"), TotalPrice: dec("85")},
			{MaterialID: "m2", Quantity: dec("5"), UnitPrice: dec("23"), TotalPrice: dec("115")},
		},
	}
	materials := map[string]domain.Material{
		"m1": {ID: "m1", Name: "Cement", Category: "binders", Unit: "bag"},
		"m2": {ID: "m2", Name: "Rebar", Category: "steel", Unit: "bar"},
	}

	resp := DebtMaterials(debt, sale, materials)

	require.Equal(t, 2, resp.MaterialsCount)
	assert.Equal(t, "Cement", resp.Materials[0].MaterialName)
	assert.Equal(t, domain.Money("85.00"), resp.Materials[0].TotalValue)
	assert.Equal(t, domain.Money("63.75"), resp.Materials[0].RemainingValue)
	assert.Equal(t, domain.Money("86.25"), resp.Materials[1].RemainingValue)
}

func TestMaterialsAnalysisRanksByOutstanding(t *testing.T) {
	sales := map[string]domain.Sale{
		"s1": {ID: "s1", Items: []domain.SaleItem{
			{MaterialID: "m1", Quantity: dec("10"), UnitPrice: dec("10")},
			{MaterialID: "m2", Quantity: dec("1"), UnitPrice: dec("50")},
		}},
		"s2": {ID: "s2", Items: []domain.SaleItem{
			{MaterialID: "m1", Quantity: dec("5"), UnitPrice: dec("10")},
		}},
	}
	materials := map[string]domain.Material{
		"m1": {ID: "m1", SKU: "CEM-50", Name: "Cement"},
		"m2": {ID: "m2", SKU: "SAND", Name: "Sand"},
	}
	debts := []domain.Debt{
		debtFixture("d1", "c1", "s1", "150", "0", -1, domain.DebtOverdue),
		debtFixture("d2", "c2", "s2", "50", "25", 4, domain.DebtPartiallyPaid),
		debtFixture("d3", "c2", "", "75", "0", 4, domain.DebtPending),
	}

	resp := MaterialsAnalysis(debts, sales, materials, today)

	require.Len(t, resp.MaterialsAnalysis, 2)
	top := resp.MaterialsAnalysis[0]
	assert.Equal(t, "m1", top.MaterialID)
	assert.Equal(t, 2, top.TotalDebts)
	assert.Equal(t, 2, top.CustomersCount)
	assert.Equal(t, domain.Money("15.00"), top.TotalQuantity)
	assert.Equal(t, domain.Money("125.00"), top.OutstandingValue)
	assert.Equal(t, domain.Money("100.00"), top.OverdueValue)
	assert.Equal(t, domain.Money("8.33"), top.AvgDebtPerUnit)

	assert.Equal(t, 2, resp.Summary.TotalMaterials)
	assert.Equal(t, domain.Money("175.00"), resp.Summary.TotalOutstandingValue)
	assert.Equal(t, domain.Money("150.00"), resp.Summary.TotalOverdueValue)
	require.NotNil(t, resp.Summary.MostValuableMaterial)
	assert.Equal(t, "m1", resp.Summary.MostValuableMaterial.MaterialID)
}

func TestDailyPaymentsOnlyCountsCompletedOnDay(t *testing.T) {
	payments := []domain.DebtPayment{
		{ID: "p1", Amount: dec("100"), PaymentMethod: domain.PaymentCash, PaymentDate: today, Status: domain.PaymentStatusCompleted},
		{ID: "p2", Amount: dec("40.50"), PaymentMethod: domain.PaymentCash, PaymentDate: today, Status: domain.PaymentStatusCompleted},
		{ID: "p3", Amount: dec("60"), PaymentMethod: domain.PaymentZaad, PaymentDate: today, Status: domain.PaymentStatusCompleted},
		{ID: "p4", Amount: dec("70"), PaymentMethod: domain.PaymentZaad, PaymentDate: today, Status: domain.PaymentStatusPending},
		{ID: "p5", Amount: dec("80"), PaymentMethod: domain.PaymentCash, PaymentDate: today.AddDate(0, 0, -1), Status: domain.PaymentStatusCompleted},
	}

	summary := DailyPayments(payments, today.Add(15*time.Hour))

	assert.Equal(t, "2025-06-15", summary.Date)
	assert.Equal(t, 3, summary.TotalPayments)
	assert.Equal(t, domain.Money("200.50"), summary.TotalAmount)
	assert.Equal(t, domain.PaymentMethodTotal{Count: 2, Amount: "140.50"}, summary.PaymentMethods[domain.PaymentCash])
	assert.Equal(t, domain.PaymentMethodTotal{Count: 1, Amount: "60.00"}, summary.PaymentMethods[domain.PaymentZaad])
}

func TestCustomerStatementAggregatesDebtsAndMaterials(t *testing.T) {
	customer := domain.Customer{ID: "c1", Name: "Acme Build", CreditLimit: dec("5000"), OutstandingBalance: dec("130")}
	debts := []domain.Debt{
		debtFixture("d1", "c1", "s1", "150", "50", 5, domain.DebtPartiallyPaid),
		debtFixture("d2", "c1", "", "30", "0", 5, domain.DebtPending),
	}
	sales := map[string]domain.Sale{
		"s1": {ID: "s1", Items: []domain.SaleItem{{MaterialID: "m1", Quantity: dec("15"), UnitPrice: dec("10")}}},
	}
	materials := map[string]domain.Material{"m1": {ID: "m1", SKU: "CEM-50", Name: "Cement"}}
	payments := []domain.DebtPayment{
		{ID: "p1", DebtID: "d1", Amount: dec("50"), PaymentMethod: domain.PaymentCash, PaymentDate: today},
	}

	statement := CustomerStatement(StatementInput{
		Customer:  customer,
		Debts:     debts,
		Payments:  payments,
		Sales:     sales,
		Materials: materials,
		Generated: today.Add(9 * time.Hour),
	})

	assert.Equal(t, "customer_debt_report", statement.ReportType)
	assert.Equal(t, "2025-06-15 09:00:00", statement.GeneratedDate)
	assert.Equal(t, "N/A", statement.Customer.Email)
	assert.Equal(t, 2, statement.Summary.TotalDebts)
	assert.Equal(t, domain.Money("180.00"), statement.Summary.TotalAmount)
	assert.Equal(t, domain.Money("50.00"), statement.Summary.TotalPaid)
	assert.Equal(t, domain.Money("130.00"), statement.Summary.TotalOutstanding)
	require.Len(t, statement.Debts, 2)
	require.Len(t, statement.Debts[0].Payments, 1)
	assert.Empty(t, statement.Debts[1].Payments)
	require.Len(t, statement.Materials, 1)
	assert.Equal(t, domain.StatementMaterial{Name: "Cement", SKU: "CEM-50", Quantity: "15.00", TotalValue: "150.00"}, statement.Materials[0])
}

type recordingCache struct {
	stored  map[string]domain.DebtSummary
	getErr  error
	deleted []string
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.DebtSummary, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	summary, ok := c.stored[key]
	if !ok {
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.DebtSummary, _ time.Duration) error {
	c.stored[key] = *value
	return nil
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.stored, key)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func TestEngineSummaryUsesCacheUntilInvalidated(t *testing.T) {
	store := &recordingCache{stored: map[string]domain.DebtSummary{}}
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) ([]domain.Debt, error) {
		loads++
		return []domain.Debt{debtFixture("d1", "c1", "", "100", "0", 5, domain.DebtPending)}, nil
	}

	first, err := engine.Summary(ctx, today, load)
	require.NoError(t, err)
	second, err := engine.Summary(ctx, today, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)

	engine.Invalidate(ctx, today)
	_, err = engine.Summary(ctx, today, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, []string{"debt-summary:2025-06-15"}, store.deleted)
}

func TestEngineSummaryRecomputesWhenCacheFails(t *testing.T) {
	store := &recordingCache{stored: map[string]domain.DebtSummary{}, getErr: errors.New("redis down")}
	engine := NewEngine(store, time.Minute)

	summary, err := engine.Summary(context.Background(), today, func(context.Context) ([]domain.Debt, error) {
		return []domain.Debt{debtFixture("d1", "c1", "", "100", "0", 5, domain.DebtPending)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDebts)
}

func TestEngineSummaryDoesNotCacheLoadThatRacedInvalidate(t *testing.T) {
	store := &recordingCache{stored: map[string]domain.DebtSummary{}}
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	stale := func(ctx context.Context) ([]domain.Debt, error) {
		// A payment commits while the debts are being read.
		engine.Invalidate(ctx, today)
		return []domain.Debt{debtFixture("d1", "c1", "", "100", "0", 5, domain.DebtPending)}, nil
	}
	summary, err := engine.Summary(ctx, today, stale)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDebts)
	assert.Empty(t, store.stored, "a load that overlapped an invalidation must not be cached")

	fresh := func(context.Context) ([]domain.Debt, error) {
		return []domain.Debt{debtFixture("d1", "c1", "", "100", "40", 5, domain.DebtPartiallyPaid)}, nil
	}
	summary, err = engine.Summary(ctx, today, fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.Money("60.00"), summary.RemainingAmount)
	assert.Contains(t, store.stored, "debt-summary:2025-06-15")
}
