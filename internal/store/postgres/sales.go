package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
	"bjbyte/backend/internal/xid"
)

const saleColumns = `id, created_at, COALESCE(client_id, '') AS client_id, buyer_name, buyer_document, buyer_phone,
	buyer_address, employee_id, employee_name, payment_method, subtotal, tax, total`

const saleLineColumns = "id, sale_id, position, stock_line_id, product_id, product_name, quantity, unit_price, subtotal, tax, total"

// CreateSale writes the header, its lines and supplier links in one transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
		sale.Lines[i].Position = i + 1
		if sale.Lines[i].ID == "" {
			sale.Lines[i].ID = xid.New("sln")
		}
	}

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		var clientID any
		if sale.ClientID != "" {
			clientID = sale.ClientID
		}
		_, err := s.conn(ctx).ExecContext(ctx, `
			INSERT INTO sales (
				id, created_at, client_id, buyer_name, buyer_document, buyer_phone, buyer_address,
				employee_id, employee_name, payment_method, subtotal, tax, total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, sale.ID, sale.CreatedAt, clientID, sale.BuyerName, sale.BuyerDocument, sale.BuyerPhone, sale.BuyerAddress,
			sale.EmployeeID, sale.EmployeeName, sale.PaymentMethod, sale.Subtotal, sale.Tax, sale.Total)
		if err != nil {
			return mapWriteError(err)
		}

		lines := s.sb.Insert("sale_lines").Columns(
			"id", "sale_id", "position", "stock_line_id", "product_id", "product_name",
			"quantity", "unit_price", "subtotal", "tax", "total",
		)
		for _, line := range sale.Lines {
			lines = lines.Values(line.ID, line.SaleID, line.Position, line.StockLineID, line.ProductID, line.ProductName,
				line.Quantity, line.UnitPrice, line.Subtotal, line.Tax, line.Total)
		}
		sqlText, args, err := lines.ToSql()
		if err != nil {
			return err
		}
		if _, err := s.conn(ctx).ExecContext(ctx, sqlText, args...); err != nil {
			return mapWriteError(err)
		}

		if len(sale.SupplierIDs) == 0 {
			return nil
		}
		links := s.sb.Insert("sale_suppliers").Columns("sale_id", "supplier_id", "position")
		for i, supplierID := range sale.SupplierIDs {
			links = links.Values(sale.ID, supplierID, i+1)
		}
		sqlText, args, err = links.ToSql()
		if err != nil {
			return err
		}
		_, err = s.conn(ctx).ExecContext(ctx, sqlText, args...)
		return mapWriteError(err)
	})
	if err != nil {
		return nil, err
	}
	if sale.SupplierIDs == nil {
		sale.SupplierIDs = []string{}
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	if err := sqlscan.Get(ctx, s.conn(ctx), &sale, "SELECT "+saleColumns+" FROM sales WHERE id = $1", id); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	sales := []domain.Sale{sale}
	if err := s.attachSaleDetails(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// DeleteSale removes the sale; lines and supplier links cascade.
func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM sales WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := s.sb.Select(saleColumns).From("sales").OrderBy("created_at DESC", "id DESC")
	if employee := strings.TrimSpace(filter.Employee); employee != "" {
		query = query.Where("lower(employee_name) = lower(?)", employee)
	}
	if filter.Date != "" {
		start, end, err := s.dayBounds(filter.Date)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at >= ? AND created_at < ?", start, end)
	}
	if product := strings.TrimSpace(filter.Product); product != "" {
		query = query.Where("EXISTS (SELECT 1 FROM sale_lines l WHERE l.sale_id = sales.id AND lower(l.product_name) = lower(?))", product)
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, 64)
	if err := sqlscan.Select(ctx, s.conn(ctx), &sales, sqlText, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if err := s.attachSaleDetails(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) attachSaleDetails(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		index[sale.ID] = i
		sales[i].Lines = []domain.SaleLine{}
		sales[i].SupplierIDs = []string{}
	}

	sqlText, args, err := s.sb.Select(saleLineColumns).From("sale_lines").
		Where(sq.Eq{"sale_id": ids}).
		OrderBy("sale_id", "position").
		ToSql()
	if err != nil {
		return err
	}
	var lines []domain.SaleLine
	if err := sqlscan.Select(ctx, s.conn(ctx), &lines, sqlText, args...); err != nil {
		return fmt.Errorf("load sale lines: %w", err)
	}
	for _, line := range lines {
		i := index[line.SaleID]
		sales[i].Lines = append(sales[i].Lines, line)
	}

	sqlText, args, err = s.sb.Select("sale_id", "supplier_id").From("sale_suppliers").
		Where(sq.Eq{"sale_id": ids}).
		OrderBy("sale_id", "position").
		ToSql()
	if err != nil {
		return err
	}
	var links []struct {
		SaleID     string `db:"sale_id"`
		SupplierID string `db:"supplier_id"`
	}
	if err := sqlscan.Select(ctx, s.conn(ctx), &links, sqlText, args...); err != nil {
		return fmt.Errorf("load sale suppliers: %w", err)
	}
	for _, link := range links {
		i := index[link.SaleID]
		sales[i].SupplierIDs = append(sales[i].SupplierIDs, link.SupplierID)
	}
	return nil
}

// ListSaleDates groups sales into quarter-hour buckets in SQL and folds them into days in Go.
// Every zone offset is a multiple of 15 minutes, so a bucket never spans two local days.
func (s *Store) ListSaleDates(ctx context.Context) ([]string, error) {
	buckets := make([]time.Time, 0, 64)
	err := sqlscan.Select(ctx, s.conn(ctx), &buckets, `
		SELECT DISTINCT date_bin('15 minutes', created_at, TIMESTAMPTZ 'epoch') AS bucket
		FROM sales
		ORDER BY bucket DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sale dates: %w", err)
	}
	dates := make([]string, 0, 32)
	for _, bucket := range buckets {
		day := bucket.In(s.loc).Format(time.DateOnly)
		if len(dates) == 0 || dates[len(dates)-1] != day {
			dates = append(dates, day)
		}
	}
	return dates, nil
}

func (s *Store) EmployeeTotals(ctx context.Context, day time.Time) ([]domain.EmployeeTotal, error) {
	start, end, err := s.dayBounds(day.In(s.loc).Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	totals := make([]domain.EmployeeTotal, 0, 16)
	err = sqlscan.Select(ctx, s.conn(ctx), &totals, `
		SELECT
			e.id AS employee_id,
			e.name AS employee_name,
			COALESCE(SUM(s.total), 0) AS historical,
			COALESCE(SUM(s.total) FILTER (WHERE s.created_at >= $1 AND s.created_at < $2), 0) AS today
		FROM employees e
		LEFT JOIN sales s ON s.employee_id = e.id
		GROUP BY e.id, e.name
		ORDER BY e.name, e.id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("employee totals: %w", err)
	}
	return totals, nil
}

// dayBounds returns [midnight, next midnight) of a yyyy-mm-dd day in the store's zone.
func (s *Store) dayBounds(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(time.DateOnly, day, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date %q", store.ErrInvalidInput, day)
	}
	return start, start.AddDate(0, 0, 1), nil
}
