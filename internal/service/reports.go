package service

import (
	"context"
	"time"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/reporting"
)

// BuildSalesReport aggregates every committed sale matching filter.
func (s *Service) BuildSalesReport(ctx context.Context, filter reporting.Filter) (reporting.Report, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		return reporting.Report{}, storeError(err, "sale", "")
	}

	ids := newOrderedSet()
	for _, sale := range sales {
		for _, line := range sale.Lines {
			ids.add(line.ProductID)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids.items)
	if err != nil {
		return reporting.Report{}, storeError(err, "product", "")
	}

	return reporting.Aggregate(ctx, sales, products, filter), nil
}

func isISODate(value string) bool {
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}
