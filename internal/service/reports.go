package service

import (
	"context"
	"errors"
	"strings"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/export"
	"nurbuild/backend/internal/report"
	"nurbuild/backend/internal/store"
)

// ValidateCredit answers whether a customer could take amount on credit
// right now. It reserves nothing.
func (s *Service) ValidateCredit(ctx context.Context, req domain.CreditValidationRequest) (domain.CreditCheck, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.CreditCheck{}, domain.Invalid("customer_id", "customer_id is required")
	}
	if !req.CreditAmount.IsPositive() {
		return domain.CreditCheck{}, domain.Invalid("credit_amount", "credit amount must be greater than zero")
	}

	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CreditCheck{}, err
	}
	return s.credit.Evaluate(*customer, money(req.CreditAmount)), nil
}

func (s *Service) DebtSummary(ctx context.Context) (domain.DebtSummary, error) {
	return s.reports.Summary(ctx, s.today(), func(ctx context.Context) ([]domain.Debt, error) {
		return s.repo.ListDebts(ctx, domain.DebtFilter{})
	})
}

func (s *Service) CustomerDebtSummaries(ctx context.Context) ([]domain.CustomerDebtSummary, error) {
	customers, err := s.repo.ListCustomers(ctx, domain.CustomerFilter{})
	if err != nil {
		return nil, err
	}
	debts, err := s.repo.ListDebts(ctx, domain.DebtFilter{})
	if err != nil {
		return nil, err
	}
	return report.CustomerSummaries(customers, debts, s.today()), nil
}

// DebtMaterials breaks a sale-linked debt down by the materials sold.
func (s *Service) DebtMaterials(ctx context.Context, debtID string) (domain.DebtMaterialsResponse, error) {
	debt, err := s.repo.GetDebt(ctx, debtID)
	if err != nil {
		return domain.DebtMaterialsResponse{}, err
	}
	if debt.SaleID == "" {
		return domain.DebtMaterialsResponse{}, domain.Invalid("sale_id", "debt is not associated with a sale")
	}
	sale, err := s.repo.GetSale(ctx, debt.SaleID)
	if err != nil {
		return domain.DebtMaterialsResponse{}, err
	}
	materials, err := s.materialIndex(ctx)
	if err != nil {
		return domain.DebtMaterialsResponse{}, err
	}
	return report.DebtMaterials(*debt, *sale, materials), nil
}

func (s *Service) MaterialsAnalysis(ctx context.Context) (domain.MaterialsAnalysisResponse, error) {
	debts, err := s.repo.ListDebts(ctx, domain.DebtFilter{SaleLinked: true})
	if err != nil {
		return domain.MaterialsAnalysisResponse{}, err
	}
	sales, err := s.salesFor(ctx, debts)
	if err != nil {
		return domain.MaterialsAnalysisResponse{}, err
	}
	materials, err := s.materialIndex(ctx)
	if err != nil {
		return domain.MaterialsAnalysisResponse{}, err
	}
	return report.MaterialsAnalysis(debts, sales, materials, s.today()), nil
}

// CustomerStatement assembles the full debt history of one customer.
func (s *Service) CustomerStatement(ctx context.Context, customerID string) (domain.CustomerStatement, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CustomerStatement{}, domain.Invalid("customer_id", "customer_id parameter required")
	}

	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	debts, err := s.repo.ListDebts(ctx, domain.DebtFilter{CustomerID: customerID})
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	payments, err := s.repo.ListDebtPayments(ctx, domain.PaymentFilter{CustomerID: customerID})
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	sales, err := s.salesFor(ctx, debts)
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	materials, err := s.materialIndex(ctx)
	if err != nil {
		return domain.CustomerStatement{}, err
	}

	return report.CustomerStatement(report.StatementInput{
		Customer:  *customer,
		Debts:     debts,
		Payments:  payments,
		Sales:     sales,
		Materials: materials,
		Generated: s.clock(),
	}), nil
}

// CustomerStatementXLSX renders the statement as a workbook.
func (s *Service) CustomerStatementXLSX(ctx context.Context, customerID string) (domain.CustomerStatement, []byte, error) {
	statement, err := s.CustomerStatement(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, nil, err
	}
	body, err := export.StatementXLSX(statement)
	if err != nil {
		return domain.CustomerStatement{}, nil, err
	}
	return statement, body, nil
}

func (s *Service) materialIndex(ctx context.Context) (map[string]domain.Material, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]domain.Material, len(materials))
	for _, material := range materials {
		index[material.ID] = material
	}
	return index, nil
}

// salesFor loads the sales behind debts. Missing sales are left out.
func (s *Service) salesFor(ctx context.Context, debts []domain.Debt) (map[string]domain.Sale, error) {
	sales := make(map[string]domain.Sale)
	for _, debt := range debts {
		if debt.SaleID == "" {
			continue
		}
		if _, ok := sales[debt.SaleID]; ok {
			continue
		}
		sale, err := s.repo.GetSale(ctx, debt.SaleID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sales[sale.ID] = *sale
	}
	return sales, nil
}
