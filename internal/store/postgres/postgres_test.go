package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewWithDB(mockDB), mock, mockDB
}

func stockRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "product_id", "location", "condition", "quantity", "notes", "updated_at"})
}

func TestReserveStock(t *testing.T) {
	t.Run("decrements with guarded update", func(t *testing.T) {
		s, mock, _ := newMockStore(t)

		mock.ExpectExec(`UPDATE stock_lines\s+SET quantity = quantity - \$1, updated_at = now\(\)\s+WHERE id = \$2 AND quantity >= \$1`).
			WithArgs(3, "stk-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.ReserveStock(context.Background(), "stk-1", 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports insufficient stock when the guard rejects", func(t *testing.T) {
		s, mock, _ := newMockStore(t)

		mock.ExpectExec(`UPDATE stock_lines`).
			WithArgs(5, "stk-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM stock_lines WHERE id = \$1\)`).
			WithArgs("stk-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.ReserveStock(context.Background(), "stk-1", 5)
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports not found for unknown line", func(t *testing.T) {
		s, mock, _ := newMockStore(t)

		mock.ExpectExec(`UPDATE stock_lines`).
			WithArgs(1, "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := s.ReserveStock(context.Background(), "missing", 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive quantity without touching the database", func(t *testing.T) {
		s, mock, _ := newMockStore(t)

		assert.ErrorIs(t, s.ReserveStock(context.Background(), "stk-1", 0), store.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReleaseStockUnknownLine(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectExec(`UPDATE stock_lines\s+SET quantity = quantity \+ \$1`).
		WithArgs(2, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.ReleaseStock(context.Background(), "missing", 2), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxLocksStockLine(t *testing.T) {
	s, mock, _ := newMockStore(t)
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout = '30000ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM stock_lines WHERE id = \$1 FOR UPDATE`).
		WithArgs("stk-1").
		WillReturnRows(stockRows().AddRow("stk-1", "prd-1", "Bodega", "nuevo", int64(7), "", now))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		line, err := s.GetStockLine(ctx, "stk-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 7, line.Quantity)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s, mock, _ := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE stock_lines`).WithArgs(1, "stk-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := s.ReserveStock(ctx, "stk-1", 1); err != nil {
			return err
		}
		return s.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStockLineOutsideTxDoesNotLock(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectQuery(`FROM stock_lines WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnRows(stockRows())

	_, err := s.GetStockLine(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStockMergesOnConflict(t *testing.T) {
	s, mock, _ := newMockStore(t)
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT INTO stock_lines .*ON CONFLICT \(product_id, location, condition\) DO UPDATE.*' \| '.*RETURNING`).
		WithArgs(sqlmock.AnyArg(), "prd-1", "Bodega", "nuevo", 2, "lote B", sqlmock.AnyArg()).
		WillReturnRows(stockRows().AddRow("stk-1", "prd-1", "Bodega", "nuevo", int64(12), "lote A | lote B", now))

	line, err := s.UpsertStock(context.Background(), domain.StockIntake{
		ProductID: "prd-1", Location: "Bodega", Condition: "nuevo", Quantity: 2, Notes: " lote B ",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, line.Quantity)
	assert.Equal(t, "lote A | lote B", line.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSaleWritesHeaderLinesAndSuppliers(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO sales`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sale_lines \(id,sale_id,position,stock_line_id,product_id,product_name,quantity,unit_price,subtotal,tax,total\) VALUES`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO sale_suppliers \(sale_id,supplier_id,position\) VALUES \(\$1,\$2,\$3\)`).
		WithArgs("sal-1", "sup-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sale, err := s.CreateSale(context.Background(), domain.Sale{
		ID:            "sal-1",
		EmployeeID:    "emp-1",
		PaymentMethod: "efectivo",
		Total:         domain.MustMoney("357"),
		SupplierIDs:   []string{"sup-1"},
		Lines: []domain.SaleLine{
			{StockLineID: "stk-1", ProductID: "prd-1", ProductName: "Filtro", Quantity: 3, UnitPrice: domain.MustMoney("100")},
			{StockLineID: "stk-2", ProductID: "prd-2", ProductName: "Aceite", Quantity: 1, UnitPrice: domain.MustMoney("0")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sale.Lines[0].Position)
	assert.Equal(t, 2, sale.Lines[1].Position)
	assert.Equal(t, "sal-1", sale.Lines[1].SaleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSalesAppliesFilters(t *testing.T) {
	s, mock, _ := newMockStore(t)
	bogota := time.FixedZone("COT", -5*60*60)
	s.loc = bogota
	created := time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)
	dayStart := time.Date(2025, 3, 1, 0, 0, 0, 0, bogota)
	dayEnd := time.Date(2025, 3, 2, 0, 0, 0, 0, bogota)

	mock.ExpectQuery(`FROM sales WHERE lower\(employee_name\) = lower\(\$1\) AND created_at >= \$2 AND created_at < \$3 AND EXISTS \(.*lower\(l.product_name\) = lower\(\$4\)\) ORDER BY created_at DESC, id DESC`).
		WithArgs("Ana", dayStart, dayEnd, "Filtro").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "created_at", "client_id", "buyer_name", "buyer_document", "buyer_phone", "buyer_address",
			"employee_id", "employee_name", "payment_method", "subtotal", "tax", "total",
		}).AddRow("sal-1", created, "", "Cliente Final", "", "", "", "emp-1", "Ana", "efectivo", "300.00", "57.00", "357.00"))
	mock.ExpectQuery(`FROM sale_lines WHERE sale_id IN \(\$1\) ORDER BY sale_id, position`).
		WithArgs("sal-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "sale_id", "position", "stock_line_id", "product_id", "product_name", "quantity", "unit_price", "subtotal", "tax", "total",
		}).AddRow("sln-1", "sal-1", int64(1), "stk-1", "prd-1", "Filtro", int64(3), "100.00", "300.00", "57.00", "357.00"))
	mock.ExpectQuery(`FROM sale_suppliers WHERE sale_id IN \(\$1\)`).
		WithArgs("sal-1").
		WillReturnRows(sqlmock.NewRows([]string{"sale_id", "supplier_id"}).AddRow("sal-1", "sup-1"))

	sales, err := s.ListSales(context.Background(), domain.SaleFilter{Employee: "Ana", Date: "2025-03-01", Product: "Filtro"})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].Total.Equal(domain.MustMoney("357")))
	require.Len(t, sales[0].Lines, 1)
	assert.Equal(t, 3, sales[0].Lines[0].Quantity)
	assert.Equal(t, []string{"sup-1"}, sales[0].SupplierIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSalesRejectsMalformedDate(t *testing.T) {
	s, mock, _ := newMockStore(t)

	_, err := s.ListSales(context.Background(), domain.SaleFilter{Date: "01/03/2025"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSaleDatesUsesStoreZone(t *testing.T) {
	s, mock, _ := newMockStore(t)
	s.loc = time.FixedZone("COT", -5*60*60)

	// 02:00 UTC on March 2 is still March 1 in Bogota.
	mock.ExpectQuery(`SELECT DISTINCT date_bin\('15 minutes', created_at, TIMESTAMPTZ 'epoch'\) AS bucket\s+FROM sales\s+ORDER BY bucket DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).
			AddRow(time.Date(2025, 3, 2, 16, 0, 0, 0, time.UTC)).
			AddRow(time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)).
			AddRow(time.Date(2025, 3, 1, 15, 15, 0, 0, time.UTC)).
			AddRow(time.Date(2025, 2, 28, 4, 45, 0, 0, time.UTC)))

	dates, err := s.ListSaleDates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-02", "2025-03-01", "2025-02-27"}, dates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeTotalsBoundsTodayInStoreZone(t *testing.T) {
	s, mock, _ := newMockStore(t)
	bogota := time.FixedZone("COT", -5*60*60)
	s.loc = bogota

	mock.ExpectQuery(`FILTER \(WHERE s.created_at >= \$1 AND s.created_at < \$2\)`).
		WithArgs(time.Date(2025, 3, 1, 0, 0, 0, 0, bogota), time.Date(2025, 3, 2, 0, 0, 0, 0, bogota)).
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "employee_name", "historical", "today"}).
			AddRow("emp-1", "Ana", "500.00", "357.00"))

	// 03:00 UTC on March 2 is the evening of March 1 in Bogota.
	totals, err := s.EmployeeTotals(context.Background(), time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Today.Equal(domain.MustMoney("357")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSaleNotFound(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectExec(`DELETE FROM sales WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteSale(context.Background(), "missing"), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapWriteError(t *testing.T) {
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23505"}), store.ErrDuplicate)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23503"}), store.ErrNotFound)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23514"}), store.ErrInvalidInput)
	assert.NoError(t, mapWriteError(nil))

	other := errors.New("connection reset")
	assert.Equal(t, other, mapWriteError(other))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_x`, escapeLike("50% off_x"))
}
