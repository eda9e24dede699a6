package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
	"bjbyte/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
	// loc decides which calendar day a sale belongs to. It matches the zone sales are stamped in,
	// independent of the session TimeZone.
	loc *time.Location
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an open handle. Tests pass a sqlmock connection here.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
		loc: time.Local,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = "id, name, description, price, base_price, profit, code, exempt, active, created_at"

// Products

func (s *Store) ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error) {
	query := s.sb.Select(productColumns).From("products").OrderBy("lower(name)", "id")
	if needle := strings.TrimSpace(nameContains); needle != "" {
		query = query.Where("name ILIKE ?", "%"+escapeLike(needle)+"%")
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, 64)
	if err := sqlscan.Select(ctx, s.conn(ctx), &products, sqlText, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := s.attachProductSuppliers(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := sqlscan.Get(ctx, s.conn(ctx), &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	products := []domain.Product{product}
	if err := s.attachProductSuppliers(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	sqlText, args, err := s.sb.Select(productColumns).From("products").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := sqlscan.Select(ctx, s.conn(ctx), &products, sqlText, args...); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	if err := s.attachProductSuppliers(ctx, products); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) attachProductSuppliers(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
		products[i].SupplierIDs = []string{}
	}
	sqlText, args, err := s.sb.Select("product_id", "supplier_id").
		From("product_suppliers").
		Where(sq.Eq{"product_id": ids}).
		OrderBy("product_id", "position").
		ToSql()
	if err != nil {
		return err
	}
	var links []struct {
		ProductID  string `db:"product_id"`
		SupplierID string `db:"supplier_id"`
	}
	if err := sqlscan.Select(ctx, s.conn(ctx), &links, sqlText, args...); err != nil {
		return fmt.Errorf("load product suppliers: %w", err)
	}
	for _, link := range links {
		i := index[link.ProductID]
		products[i].SupplierIDs = append(products[i].SupplierIDs, link.SupplierID)
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.BasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		sqlText, args, err := s.sb.Insert("products").
			Columns("id", "name", "description", "price", "base_price", "profit", "code", "exempt", "active", "created_at").
			Values(product.ID, product.Name, product.Description, product.Price, product.BasePrice, product.Profit, product.Code, product.Exempt, product.Active, product.CreatedAt).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := s.conn(ctx).ExecContext(ctx, sqlText, args...); err != nil {
			return mapWriteError(err)
		}
		return s.replaceProductSuppliers(ctx, product.ID, product.SupplierIDs)
	})
	if err != nil {
		return nil, err
	}
	if product.SupplierIDs == nil {
		product.SupplierIDs = []string{}
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.BasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	sqlText, args, err := s.sb.Update("products").
		SetMap(map[string]any{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"base_price":  product.BasePrice,
			"profit":      product.Profit,
			"code":        product.Code,
			"exempt":      product.Exempt,
			"active":      product.Active,
		}).
		Where(sq.Eq{"id": product.ID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.conn(ctx).ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) SetProductSuppliers(ctx context.Context, productID string, supplierIDs []string) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		var exists bool
		if err := s.conn(ctx).QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		if _, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM product_suppliers WHERE product_id = $1", productID); err != nil {
			return err
		}
		return s.replaceProductSuppliers(ctx, productID, supplierIDs)
	})
}

func (s *Store) replaceProductSuppliers(ctx context.Context, productID string, supplierIDs []string) error {
	if len(supplierIDs) == 0 {
		return nil
	}
	insert := s.sb.Insert("product_suppliers").Columns("product_id", "supplier_id", "position")
	for i, supplierID := range supplierIDs {
		insert = insert.Values(productID, supplierID, i+1)
	}
	sqlText, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).ExecContext(ctx, sqlText, args...); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Suppliers and clients

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = s.now()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers := make([]domain.Supplier, 0, 16)
	err := sqlscan.Select(ctx, s.conn(ctx), &suppliers, `
		SELECT id, name, phone, email, created_at
		FROM suppliers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if strings.TrimSpace(client.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if client.ID == "" {
		client.ID = xid.New("cli")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = s.now()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO clients (id, name, document, phone, address, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, client.ID, client.Name, client.Document, client.Phone, client.Address, client.Email, client.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &client, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := sqlscan.Get(ctx, s.conn(ctx), &client, `
		SELECT id, name, document, phone, address, email, created_at
		FROM clients
		WHERE id = $1
	`, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	clients := make([]domain.Client, 0, 32)
	err := sqlscan.Select(ctx, s.conn(ctx), &clients, `
		SELECT id, name, document, phone, address, email, created_at
		FROM clients
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// Employees

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) error {
	email := strings.ToLower(strings.TrimSpace(employee.Email))
	if email == "" || strings.TrimSpace(employee.PasswordHash) == "" || strings.TrimSpace(employee.Name) == "" {
		return store.ErrInvalidInput
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.Role == "" {
		employee.Role = domain.RoleSeller
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = s.now()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO employees (id, name, email, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,true,$6)
	`, employee.ID, employee.Name, email, employee.PasswordHash, employee.Role, employee.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	var employee domain.Employee
	err := sqlscan.Get(ctx, s.conn(ctx), &employee, `
		SELECT id, name, email, password_hash, role, active, created_at
		FROM employees
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &employee, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	employees := make([]domain.Employee, 0, 16)
	err := sqlscan.Select(ctx, s.conn(ctx), &employees, `
		SELECT id, name, email, password_hash, role, active, created_at
		FROM employees
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employees, nil
}

func (s *Store) UpdateEmployeePassword(ctx context.Context, email string, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.conn(ctx).ExecContext(ctx, "UPDATE employees SET password_hash = $2 WHERE email = $1", email, passwordHash)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError turns constraint violations into store sentinels.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrDuplicate
		case "23503":
			return store.ErrNotFound
		case "23514":
			return store.ErrInvalidInput
		}
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
