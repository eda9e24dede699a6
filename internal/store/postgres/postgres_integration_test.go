package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BJBYTE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BJBYTE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate())
	return s
}

func seedIntegrationStock(t *testing.T, s *Store, qty int) (domain.Product, *domain.StockLine) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	product, err := s.CreateProduct(ctx, domain.Product{
		ID:        fmt.Sprintf("prd-it-%d", stamp),
		Name:      "Producto IT",
		Price:     domain.MustMoney("100"),
		BasePrice: domain.MustMoney("60"),
		Active:    true,
	})
	require.NoError(t, err)

	line, err := s.UpsertStock(ctx, domain.StockIntake{ProductID: product.ID, Location: "Bodega", Condition: "nuevo", Quantity: qty})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id IN (SELECT sale_id FROM sale_lines WHERE stock_line_id = $1)`, line.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_lines WHERE id = $1`, line.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})
	return *product, line
}

func TestDeleteSaleAfterReleaseRestocks(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	product, line := seedIntegrationStock(t, s, 10)

	var saleID string
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetStockLine(ctx, line.ID); err != nil {
			return err
		}
		if err := s.ReserveStock(ctx, line.ID, 3); err != nil {
			return err
		}
		sale, err := s.CreateSale(ctx, domain.Sale{
			EmployeeID:    "emp-it",
			EmployeeName:  "Integracion",
			PaymentMethod: "efectivo",
			Subtotal:      domain.MustMoney("300"),
			Tax:           domain.MustMoney("57"),
			Total:         domain.MustMoney("357"),
			Lines: []domain.SaleLine{{
				StockLineID: line.ID, ProductID: product.ID, ProductName: product.Name, Quantity: 3,
				UnitPrice: domain.MustMoney("100"), Subtotal: domain.MustMoney("300"), Tax: domain.MustMoney("57"), Total: domain.MustMoney("357"),
			}},
		})
		if err != nil {
			return err
		}
		saleID = sale.ID
		return nil
	})
	require.NoError(t, err)

	after, err := s.GetStockLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, after.Quantity)

	err = s.WithinTx(ctx, func(ctx context.Context) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		for _, l := range sale.Lines {
			if err := s.ReleaseStock(ctx, l.StockLineID, l.Quantity); err != nil {
				return err
			}
		}
		return s.DeleteSale(ctx, saleID)
	})
	require.NoError(t, err)

	restored, err := s.GetStockLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, restored.Quantity)

	_, err = s.GetSale(ctx, saleID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	_, line := seedIntegrationStock(t, s, 5)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context) error {
				if _, err := s.GetStockLine(ctx, line.ID); err != nil {
					return err
				}
				return s.ReserveStock(ctx, line.ID, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrInsufficientStock):
				insufficient++
			}
		}()
	}
	wg.Wait()

	final, err := s.GetStockLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 7, insufficient)
	assert.Equal(t, 0, final.Quantity)
}
