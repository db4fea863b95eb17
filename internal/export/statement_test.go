package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"nurbuild/backend/internal/domain"
)

func TestStatementXLSXWritesAllSheets(t *testing.T) {
	statement := domain.CustomerStatement{
		ReportType:    "customer_debt_report",
		GeneratedDate: "2025-06-15 09:00:00",
		Customer: domain.StatementCustomer{
			ID:                 "cus-1",
			Name:               "Horn Builders",
			Phone:              "+252 63 000 0000",
			Email:              "N/A",
			CustomerType:       domain.CustomerCompany,
			CreditLimit:        "5000.00",
			OutstandingBalance: "750.00",
		},
		Summary: domain.StatementSummary{
			TotalDebts:       1,
			TotalAmount:      "1000.00",
			TotalPaid:        "250.00",
			TotalOutstanding: "750.00",
		},
		Debts: []domain.StatementDebt{{
			ID:              "debt-1",
			CreatedDate:     "2025-06-01",
			DueDate:         "2025-07-01",
			TotalAmount:     "1000.00",
			PaidAmount:      "250.00",
			RemainingAmount: "750.00",
			Status:          domain.DebtPartiallyPaid,
			Payments: []domain.StatementPayment{{
				ID:            "pay-1",
				Amount:        "250.00",
				PaymentMethod: domain.PaymentZaad,
				Date:          "2025-06-10",
			}},
		}},
		Materials: []domain.StatementMaterial{{Name: "Cement 50kg", SKU: "CEM-50", Quantity: "40.00", TotalValue: "340.00"}},
	}

	data, err := StatementXLSX(statement)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Debts", "Payments", "Materials"}, f.GetSheetList())

	name, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "Horn Builders", name)

	remaining, err := f.GetCellValue("Debts", "F2")
	require.NoError(t, err)
	assert.Equal(t, "750", remaining)

	method, err := f.GetCellValue("Payments", "E2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentZaad, method)

	sku, err := f.GetCellValue("Materials", "B2")
	require.NoError(t, err)
	assert.Equal(t, "CEM-50", sku)
}

func TestStatementXLSXWithNoDebts(t *testing.T) {
	data, err := StatementXLSX(domain.CustomerStatement{ReportType: "customer_debt_report"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Debts")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
