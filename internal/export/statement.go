// Package export renders reports as downloadable files.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"nurbuild/backend/internal/domain"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet   = "Summary"
	debtsSheet     = "Debts"
	paymentsSheet  = "Payments"
	materialsSheet = "Materials"
)

// StatementXLSX renders a customer statement as a workbook with one sheet
// each for the summary, debts, payments and materials.
func StatementXLSX(statement domain.CustomerStatement) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if index, err := f.GetSheetIndex(summarySheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	customer := statement.Customer
	summaryRows := [][]any{
		{"Report", statement.ReportType},
		{"Generated", statement.GeneratedDate},
		{"Customer ID", customer.ID},
		{"Customer", customer.Name},
		{"Phone", customer.Phone},
		{"Email", customer.Email},
		{"Customer Type", customer.CustomerType},
		{"Credit Limit", moneyCell(customer.CreditLimit)},
		{"Outstanding Balance", moneyCell(customer.OutstandingBalance)},
		{"Total Debts", statement.Summary.TotalDebts},
		{"Total Amount", moneyCell(statement.Summary.TotalAmount)},
		{"Total Paid", moneyCell(statement.Summary.TotalPaid)},
		{"Total Outstanding", moneyCell(statement.Summary.TotalOutstanding)},
	}
	if err := writeRows(f, summarySheet, 1, summaryRows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 36)

	debtRows := make([][]any, 0, len(statement.Debts))
	paymentRows := make([][]any, 0, len(statement.Debts))
	for _, debt := range statement.Debts {
		debtRows = append(debtRows, []any{
			debt.ID,
			debt.CreatedDate,
			debt.DueDate,
			moneyCell(debt.TotalAmount),
			moneyCell(debt.PaidAmount),
			moneyCell(debt.RemainingAmount),
			debt.Status,
			debt.Notes,
		})
		for _, payment := range debt.Payments {
			paymentRows = append(paymentRows, []any{
				debt.ID,
				payment.ID,
				payment.Date,
				moneyCell(payment.Amount),
				payment.PaymentMethod,
				payment.Notes,
			})
		}
	}
	if err := writeTable(f, debtsSheet, headerStyle,
		[]string{"Debt ID", "Created", "Due", "Total", "Paid", "Remaining", "Status", "Notes"},
		debtRows,
	); err != nil {
		return nil, err
	}
	if err := writeTable(f, paymentsSheet, headerStyle,
		[]string{"Debt ID", "Payment ID", "Date", "Amount", "Method", "Notes"},
		paymentRows,
	); err != nil {
		return nil, err
	}

	materialRows := make([][]any, 0, len(statement.Materials))
	for _, material := range statement.Materials {
		materialRows = append(materialRows, []any{
			material.Name,
			material.SKU,
			moneyCell(material.Quantity),
			moneyCell(material.TotalValue),
		})
	}
	if err := writeTable(f, materialsSheet, headerStyle,
		[]string{"Material", "SKU", "Quantity", "Total Value"},
		materialRows,
	); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, headerStyle int, header []string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headerRow := make([]any, 0, len(header))
	for _, title := range header {
		headerRow = append(headerRow, title)
	}
	if err := writeRows(f, sheet, 1, [][]any{headerRow}); err != nil {
		return err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(sheet, "A", lastCol, 18)
	return writeRows(f, sheet, 2, rows)
}

func writeRows(f *excelize.File, sheet string, firstRow int, rows [][]any) error {
	for r, values := range rows {
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, firstRow+r)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// moneyCell stores amounts as numbers so spreadsheet sums work.
func moneyCell(m domain.Money) float64 {
	return m.Decimal().InexactFloat64()
}
