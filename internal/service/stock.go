package service

import (
	"context"
	"strings"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
)

// AddStock adds an intake to the (product, location, condition) line, creating it if needed.
func (s *Service) AddStock(ctx context.Context, req domain.StockIntakeRequest) (domain.StockLine, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Location = strings.TrimSpace(req.Location)
	req.Condition = strings.TrimSpace(req.Condition)
	if err := s.check(req, apperror.NewValidation); err != nil {
		return domain.StockLine{}, err
	}

	var line *domain.StockLine
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
			return storeError(err, "product", req.ProductID)
		}
		upserted, err := s.repo.UpsertStock(ctx, domain.StockIntake{
			ProductID: req.ProductID,
			Location:  req.Location,
			Condition: req.Condition,
			Quantity:  req.Quantity,
			Notes:     req.Notes,
		})
		if err != nil {
			return storeError(err, "stock_line", req.ProductID)
		}
		line = upserted
		return nil
	})
	if err != nil {
		return domain.StockLine{}, err
	}

	s.logFor(ctx).Infow("stock intake", "stock_line_id", line.ID, "product_id", line.ProductID, "added", req.Quantity, "on_hand", line.Quantity)
	return *line, nil
}

func (s *Service) ListStockLines(ctx context.Context) ([]domain.StockLine, error) {
	lines, err := s.repo.ListStockLines(ctx)
	if err != nil {
		return nil, storeError(err, "stock_line", "")
	}
	return lines, nil
}
