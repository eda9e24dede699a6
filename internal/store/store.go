package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"bjbyte/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductDisabled   = errors.New("product disabled")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate")
)

// TxRunner runs fn inside one atomic unit of work. Repository calls made with the ctx passed
// to fn join that unit. A nested call reuses the outer unit. Returning an error discards
// every mutation made inside fn.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLedger owns on-hand quantities. Quantities only change through these calls.
type StockLedger interface {
	// GetStockLine loads a line; inside a transaction the row stays locked until commit.
	GetStockLine(ctx context.Context, id string) (*domain.StockLine, error)
	ListStockLines(ctx context.Context) ([]domain.StockLine, error)
	// ReserveStock decrements on-hand, failing with ErrInsufficientStock when qty exceeds it.
	ReserveStock(ctx context.Context, stockLineID string, qty int) error
	// ReleaseStock increments on-hand with no upper bound.
	ReleaseStock(ctx context.Context, stockLineID string, qty int) error
	// UpsertStock adds to the (product, location, condition) line or creates it.
	UpsertStock(ctx context.Context, intake domain.StockIntake) (*domain.StockLine, error)
}

type Repository interface {
	TxRunner
	StockLedger

	ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductSuppliers(ctx context.Context, productID string, supplierIDs []string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) error
	GetEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	UpdateEmployeePassword(ctx context.Context, email string, passwordHash string) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListSaleDates(ctx context.Context) ([]string, error)
	EmployeeTotals(ctx context.Context, day time.Time) ([]domain.EmployeeTotal, error)
}

// AppendNotes joins intake notes onto existing stock-line notes with " | ". Blank notes are ignored.
func AppendNotes(existing, notes string) string {
	notes = strings.TrimSpace(notes)
	switch {
	case notes == "":
		return existing
	case strings.TrimSpace(existing) == "":
		return notes
	default:
		return existing + " | " + notes
	}
}
