package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

func (s *Service) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (domain.Material, error) {
	if _, err := s.requireWriter(ctx); err != nil {
		return domain.Material{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)

	if req.SKU == "" || req.Name == "" || req.Category == "" || req.Unit == "" {
		return domain.Material{}, domain.Invalid("material", "sku, name, category and unit are required")
	}
	if !req.PricePerUnit.IsPositive() {
		return domain.Material{}, domain.Invalid("price_per_unit", "price per unit must be greater than zero")
	}
	if req.QuantityInStock.IsNegative() {
		return domain.Material{}, domain.Invalid("quantity_in_stock", "stock cannot be negative")
	}

	material := domain.Material{
		ID:              xid.New("mat"),
		SKU:             req.SKU,
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		QuantityInStock: money(req.QuantityInStock),
		PricePerUnit:    money(req.PricePerUnit),
		CreatedAt:       s.clock(),
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertMaterial(ctx, material)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return domain.Material{}, domain.Invalid("sku", "sku %s already exists", material.SKU)
	}
	if err != nil {
		return domain.Material{}, err
	}

	s.logAudit(ctx, "material_create", "material", material.ID, fmt.Sprintf("sku=%s,price=%s,stock=%s", material.SKU, material.PricePerUnit.StringFixed(2), material.QuantityInStock.String()))
	return material, nil
}

func (s *Service) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	material, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return domain.Material{}, err
	}
	return *material, nil
}

func (s *Service) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	return s.repo.ListMaterials(ctx)
}
