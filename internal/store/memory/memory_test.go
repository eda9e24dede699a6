package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
)

func TestReserveStockNeverGoesNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.ReserveStock(ctx, "stk-kit-bodega", 3))
	err := s.ReserveStock(ctx, "stk-kit-bodega", 2)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	line, err := s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)

	require.ErrorIs(t, s.ReserveStock(ctx, "missing", 1), store.ErrNotFound)
	require.ErrorIs(t, s.ReleaseStock(ctx, "missing", 1), store.ErrNotFound)
}

func TestReleaseStockHasNoUpperBound(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.ReleaseStock(ctx, "stk-kit-bodega", 100))
	line, err := s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 104, line.Quantity)
}

func TestUpsertStockMergesTripleAndNotes(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.UpsertStock(ctx, domain.StockIntake{ProductID: "prd-filtro-aire", Location: "Vitrina", Condition: "usado", Quantity: 2, Notes: "lote A"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Quantity)

	second, err := s.UpsertStock(ctx, domain.StockIntake{ProductID: "prd-filtro-aire", Location: "Vitrina", Condition: "usado", Quantity: 3, Notes: "lote B"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)
	assert.Equal(t, "lote A | lote B", second.Notes)

	third, err := s.UpsertStock(ctx, domain.StockIntake{ProductID: "prd-filtro-aire", Location: "Vitrina", Condition: "usado", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "lote A | lote B", third.Notes)

	_, err = s.UpsertStock(ctx, domain.StockIntake{ProductID: "missing", Location: "Vitrina", Condition: "nuevo", Quantity: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithinTxRollsBackEveryMutation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.ReserveStock(ctx, "stk-aceite-bodega", 5))
		_, err := s.CreateSupplier(ctx, domain.Supplier{Name: "Temporal"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	line, err := s.GetStockLine(ctx, "stk-aceite-bodega")
	require.NoError(t, err)
	assert.Equal(t, 40, line.Quantity)

	suppliers, err := s.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, suppliers, 2)
}

func TestWithinTxNestedJoinsOuter(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context) error {
			return s.ReserveStock(ctx, "stk-aceite-bodega", 1)
		}))
		return errors.New("outer fails")
	})
	require.Error(t, err)

	line, err := s.GetStockLine(ctx, "stk-aceite-bodega")
	require.NoError(t, err)
	assert.Equal(t, 40, line.Quantity)
}

func TestOpenTxIsInvisibleToOtherReaders(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	reserved := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.ReserveStock(ctx, "stk-kit-bodega", 3); err != nil {
				return err
			}
			line, err := s.GetStockLine(ctx, "stk-kit-bodega")
			if err != nil {
				return err
			}
			if line.Quantity != 1 {
				return fmt.Errorf("tx should see its own reservation, got %d", line.Quantity)
			}
			close(reserved)
			<-release
			return errors.New("abort")
		})
	}()

	<-reserved
	line, err := s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)

	lines, err := s.ListStockLines(ctx)
	require.NoError(t, err)
	for _, l := range lines {
		if l.ID == "stk-kit-bodega" {
			assert.Equal(t, 4, l.Quantity)
		}
	}

	close(release)
	require.EqualError(t, <-done, "abort")

	line, err = s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)
}

func TestWithinTxPublishesOnCommit(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context) error {
		return s.ReserveStock(ctx, "stk-kit-bodega", 3)
	}))

	line, err := s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
}

func TestConcurrentReservationsDoNotOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context) error {
				return s.ReserveStock(ctx, "stk-kit-bodega", 1)
			})
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	line, err := s.GetStockLine(ctx, "stk-kit-bodega")
	require.NoError(t, err)
	assert.Equal(t, 4, sold)
	assert.Equal(t, 0, line.Quantity)
}

func TestListSalesFiltersAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := s.CreateSale(ctx, domain.Sale{CreatedAt: day1, EmployeeName: "Ana", Total: domain.MustMoney("100"), Lines: []domain.SaleLine{{ProductName: "Filtro de aire", Quantity: 1}}})
	require.NoError(t, err)
	_, err = s.CreateSale(ctx, domain.Sale{CreatedAt: day2, EmployeeName: "Luis", Total: domain.MustMoney("50"), Lines: []domain.SaleLine{{ProductName: "Aceite", Quantity: 1}}})
	require.NoError(t, err)

	all, err := s.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Luis", all[0].EmployeeName)

	byEmployee, err := s.ListSales(ctx, domain.SaleFilter{Employee: "ana"})
	require.NoError(t, err)
	require.Len(t, byEmployee, 1)

	byProduct, err := s.ListSales(ctx, domain.SaleFilter{Product: "FILTRO DE AIRE"})
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, "Ana", byProduct[0].EmployeeName)

	byDate, err := s.ListSales(ctx, domain.SaleFilter{Date: "2025-03-02"})
	require.NoError(t, err)
	require.Len(t, byDate, 1)

	dates, err := s.ListSaleDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-02", "2025-03-01"}, dates)
}

func TestCreateSaleRejectsEmptyLines(t *testing.T) {
	s := New()
	_, err := s.CreateSale(context.Background(), domain.Sale{})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestEmployeeTotals(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	today := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateSale(ctx, domain.Sale{CreatedAt: today, EmployeeID: "emp-vendedor", Total: domain.MustMoney("357"), Lines: []domain.SaleLine{{Quantity: 1}}})
	require.NoError(t, err)
	_, err = s.CreateSale(ctx, domain.Sale{CreatedAt: today.AddDate(0, 0, -3), EmployeeID: "emp-vendedor", Total: domain.MustMoney("100"), Lines: []domain.SaleLine{{Quantity: 1}}})
	require.NoError(t, err)

	totals, err := s.EmployeeTotals(ctx, today)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	var seller domain.EmployeeTotal
	for _, total := range totals {
		if total.EmployeeID == "emp-vendedor" {
			seller = total
		}
	}
	assert.True(t, seller.Historical.Equal(domain.MustMoney("457")))
	assert.True(t, seller.Today.Equal(domain.MustMoney("357")))
}

func TestEmployeesByEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEmployee(ctx, domain.Employee{Name: "Ana", Email: "Ana@Taller.co", PasswordHash: "hash"}))
	require.ErrorIs(t, s.CreateEmployee(ctx, domain.Employee{Name: "Ana 2", Email: "ana@taller.co", PasswordHash: "hash"}), store.ErrDuplicate)

	employee, err := s.GetEmployeeByEmail(ctx, "ANA@taller.co")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, employee.Role)

	require.NoError(t, s.UpdateEmployeePassword(ctx, "ana@taller.co", "hash2"))
	employee, err = s.GetEmployeeByEmail(ctx, "ana@taller.co")
	require.NoError(t, err)
	assert.Equal(t, "hash2", employee.PasswordHash)
}
