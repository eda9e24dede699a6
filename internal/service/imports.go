package service

import (
	"context"
	"errors"
	"io"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/csvimport"
	"bjbyte/backend/internal/domain"
)

// ImportProducts parses the whole file first and persists nothing unless every row is valid.
func (s *Service) ImportProducts(ctx context.Context, r io.Reader, format csvimport.Format) (domain.ImportResult, error) {
	parsed, err := csvimport.Parse(r, format)
	if err != nil {
		return domain.ImportResult{}, importError(err)
	}

	created := make([]domain.Product, 0, len(parsed))
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		for _, product := range parsed {
			saved, err := s.repo.CreateProduct(ctx, product)
			if err != nil {
				return storeError(err, "product", product.Name)
			}
			created = append(created, *saved)
		}
		return nil
	})
	if err != nil {
		return domain.ImportResult{}, err
	}

	s.logFor(ctx).Infow("products imported", "format", format.String(), "count", len(created))
	return domain.ImportResult{
		Format:   format.String(),
		Imported: len(created),
		Products: created,
	}, nil
}

func importError(err error) error {
	var rowErrs csvimport.RowErrors
	switch {
	case errors.As(err, &rowErrs):
		return apperror.NewValidation("csv file has invalid rows").
			WithDetail("rows", []csvimport.RowError(rowErrs)).
			WithCause(err)
	case errors.Is(err, csvimport.ErrEmptyFile),
		errors.Is(err, csvimport.ErrInvalidEncoding),
		errors.Is(err, csvimport.ErrUnknownFormat):
		return apperror.NewInvalidInput(err.Error()).WithCause(err)
	default:
		return apperror.NewInternal(err)
	}
}
