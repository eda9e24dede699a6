package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/sqlscan"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
	"bjbyte/backend/internal/xid"
)

const stockColumns = "id, product_id, location, condition, quantity, notes, updated_at"

// GetStockLine locks the row FOR UPDATE when ctx carries a transaction.
func (s *Store) GetStockLine(ctx context.Context, id string) (*domain.StockLine, error) {
	query := "SELECT " + stockColumns + " FROM stock_lines WHERE id = $1"
	if _, ok := txFrom(ctx); ok {
		query += " FOR UPDATE"
	}
	var line domain.StockLine
	if err := sqlscan.Get(ctx, s.conn(ctx), &line, query, id); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get stock line: %w", err)
	}
	return &line, nil
}

func (s *Store) ListStockLines(ctx context.Context) ([]domain.StockLine, error) {
	lines := make([]domain.StockLine, 0, 64)
	err := sqlscan.Select(ctx, s.conn(ctx), &lines, "SELECT "+stockColumns+" FROM stock_lines ORDER BY product_id, location, condition")
	if err != nil {
		return nil, fmt.Errorf("list stock lines: %w", err)
	}
	return lines, nil
}

// ReserveStock decrements with a guarded update, so on-hand cannot go negative even when the
// caller skipped the row lock.
func (s *Store) ReserveStock(ctx context.Context, stockLineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE stock_lines
		SET quantity = quantity - $1, updated_at = now()
		WHERE id = $2 AND quantity >= $1
	`, qty, stockLineID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM stock_lines WHERE id = $1)", stockLineID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) ReleaseStock(ctx context.Context, stockLineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE stock_lines
		SET quantity = quantity + $1, updated_at = now()
		WHERE id = $2
	`, qty, stockLineID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) UpsertStock(ctx context.Context, intake domain.StockIntake) (*domain.StockLine, error) {
	if intake.ProductID == "" || strings.TrimSpace(intake.Location) == "" || strings.TrimSpace(intake.Condition) == "" || intake.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	sqlText, args, err := s.sb.Insert("stock_lines").
		Columns("id", "product_id", "location", "condition", "quantity", "notes", "updated_at").
		Values(xid.New("stk"), intake.ProductID, intake.Location, intake.Condition, intake.Quantity, strings.TrimSpace(intake.Notes), s.now()).
		Suffix(`ON CONFLICT (product_id, location, condition) DO UPDATE SET
			quantity = stock_lines.quantity + EXCLUDED.quantity,
			notes = CASE
				WHEN EXCLUDED.notes = '' THEN stock_lines.notes
				WHEN stock_lines.notes = '' THEN EXCLUDED.notes
				ELSE stock_lines.notes || ' | ' || EXCLUDED.notes
			END,
			updated_at = EXCLUDED.updated_at
			RETURNING ` + stockColumns).
		ToSql()
	if err != nil {
		return nil, err
	}
	var line domain.StockLine
	if err := sqlscan.Get(ctx, s.conn(ctx), &line, sqlText, args...); err != nil {
		return nil, mapWriteError(err)
	}
	return &line, nil
}
