package service

import (
	"context"
	"errors"
	"strings"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/pricing"
	"bjbyte/backend/internal/store"
)

// RegisterSale reserves stock for every line, prices the lines and persists the sale in one
// transaction. Any failure leaves stock untouched.
func (s *Service) RegisterSale(ctx context.Context, employee domain.Actor, req domain.RegisterSaleRequest) (domain.Sale, error) {
	if err := s.check(req, apperror.NewInvalidInput); err != nil {
		return domain.Sale{}, err
	}
	if strings.TrimSpace(employee.EmployeeID) == "" {
		return domain.Sale{}, apperror.NewUnauthorized("sale requires an authenticated employee")
	}

	var created *domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		sale := domain.Sale{
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			EmployeeID:    employee.EmployeeID,
			EmployeeName:  employee.Name,
			Lines:         make([]domain.SaleLine, 0, len(req.Lines)),
		}

		amounts := make([]pricing.LineAmounts, 0, len(req.Lines))
		suppliers := newOrderedSet()
		for _, item := range req.Lines {
			line, product, err := s.reserveLine(ctx, item)
			if err != nil {
				return err
			}
			calc := pricing.ComputeLine(product.Price, item.Quantity, product.Exempt)
			amounts = append(amounts, calc)
			suppliers.add(product.SupplierIDs...)
			sale.Lines = append(sale.Lines, domain.SaleLine{
				StockLineID: line.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				UnitPrice:   product.Price,
				Subtotal:    calc.Subtotal,
				Tax:         calc.Tax,
				Total:       calc.Total,
			})
		}

		totals := pricing.Sum(amounts...)
		sale.Subtotal, sale.Tax, sale.Total = totals.Subtotal, totals.Tax, totals.Total
		sale.SupplierIDs = suppliers.items

		if err := s.resolveBuyer(ctx, req.Buyer, &sale); err != nil {
			return err
		}
		sale.CreatedAt = s.now()

		saved, err := s.repo.CreateSale(ctx, sale)
		if err != nil {
			return storeError(err, "sale", sale.ID)
		}
		created = saved
		return nil
	})
	if err != nil {
		s.logFor(ctx).Warnw("sale rejected", "employee_id", employee.EmployeeID, "lines", len(req.Lines), "error", err)
		return domain.Sale{}, err
	}

	s.logFor(ctx).Infow("sale registered",
		"sale_id", created.ID,
		"employee_id", created.EmployeeID,
		"lines", len(created.Lines),
		"total", created.Total.StringFixed(2),
	)
	return *created, nil
}

func (s *Service) reserveLine(ctx context.Context, item domain.SaleLineRequest) (*domain.StockLine, *domain.Product, error) {
	line, err := s.repo.GetStockLine(ctx, item.StockLineID)
	if err != nil {
		return nil, nil, storeError(err, "stock_line", item.StockLineID)
	}
	product, err := s.repo.GetProduct(ctx, line.ProductID)
	if err != nil {
		return nil, nil, storeError(err, "product", line.ProductID)
	}
	if !product.Active {
		return nil, nil, apperror.NewProductDisabled(product.ID, product.Name).WithCause(store.ErrProductDisabled)
	}
	if item.Quantity > line.Quantity {
		return nil, nil, apperror.NewInsufficientStock(line.ID, item.Quantity, line.Quantity).WithCause(store.ErrInsufficientStock)
	}
	if err := s.repo.ReserveStock(ctx, line.ID, item.Quantity); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return nil, nil, apperror.NewInsufficientStock(line.ID, item.Quantity, line.Quantity).WithCause(err)
		}
		return nil, nil, storeError(err, "stock_line", line.ID)
	}
	return line, product, nil
}

// resolveBuyer copies the registered client's details when a client id is given, otherwise the
// free-text buyer fields.
func (s *Service) resolveBuyer(ctx context.Context, buyer domain.Buyer, sale *domain.Sale) error {
	clientID := strings.TrimSpace(buyer.ClientID)
	if clientID == "" {
		sale.BuyerName = strings.TrimSpace(buyer.Name)
		sale.BuyerDocument = strings.TrimSpace(buyer.Document)
		sale.BuyerPhone = strings.TrimSpace(buyer.Phone)
		sale.BuyerAddress = strings.TrimSpace(buyer.Address)
		return nil
	}
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return storeError(err, "client", clientID)
	}
	sale.ClientID = client.ID
	sale.BuyerName = client.Name
	sale.BuyerDocument = client.Document
	sale.BuyerPhone = client.Phone
	sale.BuyerAddress = client.Address
	return nil
}

// ReverseSale puts every line's quantity back on its stock line and deletes the sale.
func (s *Service) ReverseSale(ctx context.Context, saleID string) error {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return apperror.NewInvalidInput("sale id is required")
	}

	var reversed *domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetSale(ctx, saleID)
		if err != nil {
			return storeError(err, "sale", saleID)
		}
		for _, line := range sale.Lines {
			if err := s.repo.ReleaseStock(ctx, line.StockLineID, line.Quantity); err != nil {
				return storeError(err, "stock_line", line.StockLineID)
			}
		}
		if err := s.repo.DeleteSale(ctx, sale.ID); err != nil {
			return storeError(err, "sale", sale.ID)
		}
		reversed = sale
		return nil
	})
	if err != nil {
		return err
	}

	actor, _ := ActorFromContext(ctx)
	s.logFor(ctx).Infow("sale reversed",
		"sale_id", reversed.ID,
		"lines", len(reversed.Lines),
		"total", reversed.Total.StringFixed(2),
		"by", actor.EmployeeID,
	)
	return nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, storeError(err, "sale", saleID)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	filter.Product = strings.TrimSpace(filter.Product)
	filter.Employee = strings.TrimSpace(filter.Employee)
	filter.Date = strings.TrimSpace(filter.Date)
	if filter.Date != "" && !isISODate(filter.Date) {
		return nil, apperror.NewInvalidInput("date must be yyyy-mm-dd")
	}
	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, storeError(err, "sale", "")
	}
	return sales, nil
}

func (s *Service) ListSaleDates(ctx context.Context) ([]string, error) {
	dates, err := s.repo.ListSaleDates(ctx)
	if err != nil {
		return nil, storeError(err, "sale", "")
	}
	return dates, nil
}

func (s *Service) EmployeeTotals(ctx context.Context) ([]domain.EmployeeTotal, error) {
	totals, err := s.repo.EmployeeTotals(ctx, s.now())
	if err != nil {
		return nil, storeError(err, "employee", "")
	}
	return totals, nil
}

// orderedSet keeps first-seen order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}, items: []string{}}
}

func (o *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := o.seen[v]; ok {
			continue
		}
		o.seen[v] = struct{}{}
		o.items = append(o.items, v)
	}
}
