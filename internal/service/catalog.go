package service

import (
	"context"
	"strings"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, nameContains)
	if err != nil {
		return nil, storeError(err, "product", "")
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, storeError(err, "product", id)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if err := s.check(req, apperror.NewValidation); err != nil {
		return domain.Product{}, err
	}
	if err := validatePrices(req.Price, req.BasePrice); err != nil {
		return domain.Product{}, err
	}

	price := domain.RoundMoney(req.Price)
	base := domain.RoundMoney(req.BasePrice)
	profit := price.Sub(base)
	if req.Profit != nil {
		profit = domain.RoundMoney(*req.Profit)
	}

	product, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       price,
		BasePrice:   base,
		Profit:      profit,
		Code:        req.Code,
		Exempt:      req.Exempt,
		Active:      true,
		SupplierIDs: dedupe(req.SupplierIDs),
	})
	if err != nil {
		return domain.Product{}, storeError(err, "product", req.Name)
	}
	s.logFor(ctx).Infow("product created", "product_id", product.ID, "price", product.Price.StringFixed(2))
	return *product, nil
}

// UpdateProduct applies the non-nil fields. Profit is recomputed when a price changes.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, storeError(err, "product", id)
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, apperror.NewValidation("name is required")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Code != nil {
		updated.Code = strings.TrimSpace(*req.Code)
	}
	if req.Price != nil {
		updated.Price = domain.RoundMoney(*req.Price)
	}
	if req.BasePrice != nil {
		updated.BasePrice = domain.RoundMoney(*req.BasePrice)
	}
	if err := validatePrices(updated.Price, updated.BasePrice); err != nil {
		return domain.Product{}, err
	}
	if req.Price != nil || req.BasePrice != nil {
		updated.Profit = updated.Price.Sub(updated.BasePrice)
	}
	if req.Exempt != nil {
		updated.Exempt = *req.Exempt
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, storeError(err, "product", id)
	}
	s.logFor(ctx).Infow("product updated", "product_id", saved.ID, "active", saved.Active, "price", saved.Price.StringFixed(2))
	return *saved, nil
}

func (s *Service) SetProductActive(ctx context.Context, id string, active bool) (domain.Product, error) {
	return s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &active})
}

func (s *Service) SetProductSuppliers(ctx context.Context, id string, req domain.ProductSuppliersRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if err := s.repo.SetProductSuppliers(ctx, id, dedupe(req.SupplierIDs)); err != nil {
		return domain.Product{}, storeError(err, "product", id)
	}
	return s.GetProduct(ctx, id)
}

func validatePrices(price, base domain.Money) error {
	if price.IsNegative() || base.IsNegative() {
		return apperror.NewValidation("prices must not be negative").
			WithDetail("price", price.StringFixed(2)).
			WithDetail("base_price", base.StringFixed(2))
	}
	return nil
}

func dedupe(ids []string) []string {
	set := newOrderedSet()
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set.add(id)
		}
	}
	return set.items
}

// Suppliers

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req, apperror.NewValidation); err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: req.Email,
	})
	if err != nil {
		return domain.Supplier{}, storeError(err, "supplier", req.Name)
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, storeError(err, "supplier", "")
	}
	return suppliers, nil
}

// Clients

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req, apperror.NewValidation); err != nil {
		return domain.Client{}, err
	}
	client, err := s.repo.CreateClient(ctx, domain.Client{
		Name:     req.Name,
		Document: strings.TrimSpace(req.Document),
		Phone:    strings.TrimSpace(req.Phone),
		Address:  strings.TrimSpace(req.Address),
		Email:    req.Email,
	})
	if err != nil {
		return domain.Client{}, storeError(err, "client", req.Name)
	}
	return *client, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Client{}, storeError(err, "client", id)
	}
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, storeError(err, "client", "")
	}
	return clients, nil
}
